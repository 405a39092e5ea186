// Package lwp3 implements the LEGO Wireless Protocol 3 message codec.
//
// LWP3 is the binary protocol spoken by Powered Up hubs (Technic hub, Boost
// move hub, city hub, remote control) over their single BLE characteristic.
// This package translates between raw notification payloads and typed
// message values. It holds no state and performs no I/O.
//
// # Frame Layout
//
// Every frame starts with a common header:
//
//	┌──────────┬────────┬──────────────┬─────────────────┐
//	│ length   │ hub id │ message type │ payload ...     │
//	│ 1-2 B    │ 0x00   │ 1 B          │ type specific   │
//	└──────────┴────────┴──────────────┴─────────────────┘
//
// The length covers the whole frame including itself. Frames shorter than
// 128 bytes use a single length byte; longer frames set bit 7 of the first
// byte and carry the high bits in a second byte. Multi-byte integers are
// little-endian. Mode ranges use IEEE-754 single-precision floats.
//
// # Usage
//
//	msg, err := lwp3.Decode(frame)
//	if err != nil {
//	    // errors.Is(err, lwp3.ErrMalformed)
//	}
//	switch m := msg.(type) {
//	case *lwp3.HubAttachedIO:
//	    fmt.Println(m.Port, m.IOType)
//	}
//
//	out, err := lwp3.Encode(lwp3.StartSpeed(0, 50, 100, lwp3.ProfileNone))
//
// # Round Trips
//
// Decode(Encode(m)) equals m for every message Encode accepts. Byte slice
// fields have one empty form: Decode returns nil, and an empty slice encodes
// exactly like nil. Mode names and symbols are NUL padded on the wire, so
// Encode rejects strings containing NUL.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use. Message values are
// plain data and must not be shared across goroutines while being mutated.
//
// # References
//
//   - LEGO Wireless Protocol 3.0.00 documentation:
//     https://lego.github.io/lego-ble-wireless-protocol-docs/
package lwp3
