package control

import "errors"

// Domain errors for the control package.
var (
	// ErrUnknownCommand is returned for a command name with no handler.
	ErrUnknownCommand = errors.New("control: unknown command")

	// ErrMalformedCommand is returned when a payload is not a command object.
	ErrMalformedCommand = errors.New("control: malformed command")

	// ErrInvalidParameters is returned when a parameter is missing, has the
	// wrong type or is out of range. No write is attempted.
	ErrInvalidParameters = errors.New("control: invalid parameters")
)
