package control

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/lwp3"
)

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was written to the hub.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes carried by failed acknowledgements.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeNotFound          = "PORT_NOT_FOUND"
	ErrCodeDisconnected      = "HUB_DISCONNECTED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
)

// Ack reports the outcome of one command.
type Ack struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	HubID     string    `json:"hub_id"`
	Port      *uint8    `json:"port,omitempty"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAck builds the acknowledgement for a command result. port is nil for
// hub commands.
func NewAck(hubID string, port *uint8, cmd Command, err error) Ack {
	ack := Ack{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		HubID:     hubID,
		Port:      port,
		Command:   cmd.Command,
		Status:    AckAccepted,
	}
	if err != nil {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: Code(err), Message: err.Error()}
	}
	return ack
}

// Code maps a command error to its acknowledgement code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrMalformedCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, lwp3.ErrInvalidMessage):
		return ErrCodeInvalidParameters
	case errors.Is(err, hub.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, hub.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, hub.ErrDisconnected):
		return ErrCodeDisconnected
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeProtocolError
	}
}
