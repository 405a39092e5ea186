// Package api implements the HTTP REST API and WebSocket server for a
// Powered Up hub.
//
// This package provides:
//   - REST endpoints for hub identity, attached ports and the persisted catalog
//   - Device and hub commands, answered with the same acknowledgement the
//     MQTT bridge publishes
//   - A WebSocket hub streaming value samples and hub notifications
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Routes
//
// All routes live under /api/v1:
//
//	GET  /health
//	GET  /metrics
//	GET  /hub
//	POST /hub/actions
//	GET  /ports[?io_type=]
//	GET  /ports/{port}
//	POST /ports/{port}/commands
//	GET  /catalog/ports[?hub_id=|?io_type=]
//	GET  /commands[?hub_id=&command=&status=&source=&limit=&offset=]
//	GET  /ws[?channels=]
//
// Command acknowledgements map to HTTP status: accepted 202, invalid
// command or parameters 400, unknown port 404, unsupported by the device
// kind 422, hub disconnected 503, timeout 504, any other protocol failure 502.
//
// # WebSocket channels
//
//	port.value          every value sample
//	port.value.{port}   samples of one port
//	hub.notice          hub notifications
//
// The API is a local control surface with no authentication.
package api
