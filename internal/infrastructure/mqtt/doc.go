// Package mqtt provides MQTT client connectivity for the equipment status service.
//
// This package manages:
//   - A clean broker session that reconnects on its own
//   - Report filters, validated and subscribed again after each reconnect
//   - A retained online/offline document with a matching will
//   - Delivery counters and a health check
//
// Equipment publishes state reports to equipstatus/equipment/{id}/report;
// the ingest package subscribes to them. The service publishes nothing but
// its own online/offline status.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllEquipmentReports(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
