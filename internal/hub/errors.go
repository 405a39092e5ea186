package hub

import "errors"

// Domain errors for the hub package.
var (
	// ErrNotFound is returned when no record exists for a port id or kind.
	ErrNotFound = errors.New("hub: port not found")

	// ErrUnsupported is returned when a command does not apply to the
	// device kind on the addressed port. No write is attempted.
	ErrUnsupported = errors.New("hub: not supported for this device kind")

	// ErrDisconnected is returned when the hub link has gone away.
	ErrDisconnected = errors.New("hub: disconnected")

	// ErrNilTransport is returned when a session is created without a transport.
	ErrNilTransport = errors.New("hub: transport is required")
)
