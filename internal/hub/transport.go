package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// Transport is a connected link to one hub.
type Transport interface {
	// Write sends one frame without waiting for a hub acknowledgement.
	// A write on a link that is already gone returns an error wrapping
	// ErrDisconnected, even before Events has closed.
	Write(ctx context.Context, frame []byte) error

	// Events delivers inbound frames in arrival order. The channel closes
	// when the link goes down.
	Events() <-chan []byte

	// Close tears the link down. Events closes shortly after.
	Close() error
}

// closeOnce is a channel that can be closed from several goroutines.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// writer is the cached write target shared by a session and its device
// handles. It never takes the session lock.
type writer struct {
	t       Transport
	done    *closeOnce
	timeout time.Duration

	sent   atomic.Uint64
	failed atomic.Uint64
}

// send encodes m and writes it. A write after the session ended returns
// ErrDisconnected without touching the transport.
func (w *writer) send(ctx context.Context, m lwp3.Message) error {
	select {
	case <-w.done.Done():
		return ErrDisconnected
	default:
	}

	frame, err := lwp3.Encode(m)
	if err != nil {
		return fmt.Errorf("hub: encoding %s: %w", m.MessageType(), err)
	}

	if w.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.timeout)
			defer cancel()
		}
	}

	if err := w.t.Write(ctx, frame); err != nil {
		w.failed.Add(1)
		select {
		case <-w.done.Done():
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		default:
		}
		return fmt.Errorf("hub: writing %s: %w", m.MessageType(), err)
	}
	w.sent.Add(1)
	return nil
}
