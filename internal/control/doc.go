// Package control decodes JSON device and hub commands and executes them
// against a hub session.
//
// Commands arrive from MQTT and the HTTP API in the same shape:
//
//	{"id": "...", "command": "start_speed", "parameters": {"speed": 50}}
//
// Port commands run on a Device handle, hub commands on the Hub. Every
// failure wraps one of the package sentinels or a hub error, and Code maps
// it to the error code carried by acknowledgements.
package control
