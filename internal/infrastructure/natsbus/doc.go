// Package natsbus provides the NATS connection used for request-reply
// ingest of equipment state reports.
//
// Handlers follow the shape func(*nats.Msg) (resp any): the returned value
// is marshalled to JSON and sent as the reply.
//
// Usage:
//
//	bus, err := natsbus.Connect(cfg.NATS, logger)
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	err = bus.Handle("equipment.report", "equipstatus", handler.HandleNATS)
package natsbus
