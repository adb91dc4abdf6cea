// Package api implements the HTTP REST API for the equipment status service.
//
// Endpoints (also mounted under /api/v1):
//
//	GET  /equipment                                   latest state per equipment
//	POST /equipment                                   report a state
//	GET  /equipment/history/from/{from}/to/{to}       all states in range
//	GET  /equipment/history/{id}/from/{from}/to/{to}  one equipment's states in range
//	GET  /health                                      store and bus health
//
// Range bounds accept the same timestamp layouts as reports. A range with
// no states answers 204 No Content. Rejected reports answer 400 without
// saying which rule failed.
//
// Errors use the body {status, code, message}. There is no authentication.
package api
