// Package ingest accepts equipment state reports from the message buses.
//
// Equipment that cannot call the HTTP API publishes reports instead:
//
//   - MQTT: equipstatus/equipment/{id}/report, payload {"state", "timestamp"}
//     with an optional "id" that overrides the topic segment
//   - NATS: request-reply on equipment.report, payload {"id", "state",
//     "timestamp"}, reply {"accepted": bool}
//
// Both paths decode into Report, check its shape with go-playground
// validator and hand it to the equipment service, which applies the same
// rules as POST /equipment. Ingest is write-only; nothing is published
// when a state changes.
package ingest
