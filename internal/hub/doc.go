// Package hub implements a connected LWP3 hub session.
//
// A Session owns one hub connection. It tracks the devices attached to the
// hub's ports, negotiates each device's capabilities, and fans telemetry out
// to any number of subscribers.
//
// # Architecture
//
//	┌───────────┐  events  ┌────────────┐  mutate   ┌──────────────┐
//	│ Transport │─────────►│ dispatcher │──────────►│ Registry     │
//	│  (BLE)    │◄─────────│ goroutine  │           │ (PortRecord) │
//	└───────────┘ requests └─────┬──────┘           └──────────────┘
//	      ▲                      │ publish
//	      │                      ▼
//	      │                ┌──────────┐  subscribe  ┌─────────────┐
//	      │                │ Topics   │────────────►│ subscribers │
//	      │                └──────────┘             └─────────────┘
//	      │  commands
//	┌─────┴─────┐
//	│ Device    │  (handle: port id + cached writer)
//	└───────────┘
//
// # Negotiation
//
// When a device attaches, the dispatcher creates an empty PortRecord and
// asks for the port's mode info and its possible mode combinations. When
// the mode info reply names N modes, it asks for eight pieces of metadata
// per mode (name, raw, pct, SI, symbol, mapping, motor bias, value format).
// Replies may arrive in any order. A record is ready once every requested
// reply has been applied; Session.WaitReady blocks until then.
//
// # Topics
//
// Single values, combined values, network commands and hub notices are
// published on drop-oldest broadcast topics. A slow subscriber loses its
// oldest buffered items; the dispatcher never blocks on a subscriber.
//
// # Thread Safety
//
// Session and Device methods are safe for concurrent use. Device handles
// never take the session lock to write, so commands to different ports do
// not contend with each other or with the dispatcher.
package hub
