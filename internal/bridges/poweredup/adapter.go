package poweredup

import (
	"context"

	"github.com/nerrad567/poweredup/internal/control"
	"github.com/nerrad567/poweredup/internal/hub"
)

// SessionAdapter exposes a *hub.Session through the Session interface.
type SessionAdapter struct {
	*hub.Session
}

var _ Session = SessionAdapter{}

// PortDevice returns the command handle for a port.
func (a SessionAdapter) PortDevice(port uint8) (control.Device, error) {
	d, err := a.Device(port)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SubscribeValues enables value reports for a port mode. The returned
// function ends the subscription and closes the channel.
func (a SessionAdapter) SubscribeValues(ctx context.Context, port, mode uint8, delta uint32) (<-chan hub.Sample, func(), error) {
	d, err := a.Device(port)
	if err != nil {
		return nil, nil, err
	}
	sub, err := d.Subscribe(ctx, mode, delta)
	if err != nil {
		return nil, nil, err
	}
	return sub.C, sub.Close, nil
}
