package lwp3

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformed is returned when a received frame cannot be decoded:
	// it is empty, shorter than its declared length, carries an unknown
	// message type, or its payload does not fit the declared length.
	ErrMalformed = errors.New("lwp3: malformed frame")

	// ErrUnknownType is returned for a frame whose message type byte is not
	// recognised. It always wraps ErrMalformed.
	ErrUnknownType = fmt.Errorf("%w: unknown message type", ErrMalformed)

	// ErrInvalidMessage is returned when a message value cannot be encoded
	// (field out of range, string too long, frame too large).
	ErrInvalidMessage = errors.New("lwp3: invalid message")
)
