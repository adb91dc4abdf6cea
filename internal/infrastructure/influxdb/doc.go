// Package influxdb mirrors accepted equipment state reports into InfluxDB v2.
//
// Each accepted report becomes one point stamped with the report time:
//
//	equipment_state,equipment_id=PRESS_1,state=Running value=1i <report time>
//
// The mirror is optional and write-only. The equipment store stays the
// source of truth; the bucket serves dashboards and Flux aggregation.
//
//	mirror, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer mirror.Close()
//	mirror.SetLogger(log)
//	service.SetMirror(mirror)
package influxdb
