// Package catalog persists negotiated port records and hub identity in
// SQLite so the API can describe a hub's devices between sessions.
//
// Records are stored as JSON next to indexed columns (port, io_type,
// virtual). Sync keeps the catalog current from a live session's
// notifications: port_ready saves, detached deletes, property updates
// refresh the hub row.
package catalog
