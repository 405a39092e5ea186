// Package telemetry turns hub value samples and session status into
// InfluxDB points.
//
// Measurements:
//
//	port_value   tags hub_id, port, mode, io_type   fields value0..valueN
//	hub_status   tags hub_id, kind                  fields battery_percent, rssi, frames_*, dropped_items
package telemetry
