package ble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/poweredup/internal/hub"
)

// Conn is a connected hub. It implements hub.Transport.
type Conn struct {
	dev     bluetooth.Device
	char    bluetooth.DeviceCharacteristic
	address string

	writeMu sync.Mutex

	// mu guards closed and the send side of events.
	mu      sync.Mutex
	closed  bool
	events  chan []byte
	onClose func(address string)

	dropped atomic.Uint64
}

var _ hub.Transport = (*Conn)(nil)

func newConn(dev bluetooth.Device, address string, buffer int) *Conn {
	return &Conn{dev: dev, address: address, events: make(chan []byte, buffer)}
}

// Address returns the hub's Bluetooth address.
func (c *Conn) Address() string { return c.address }

// Dropped returns how many notifications were lost to a full event buffer.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// Write sends one frame with write-without-response. Writes are
// serialised; the GATT layer accepts one at a time.
func (c *Conn) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.char.WriteWithoutResponse(frame); err != nil {
		return fmt.Errorf("ble: write: %w", err)
	}
	return nil
}

// Events returns the notification stream. It closes on disconnect.
func (c *Conn) Events() <-chan []byte { return c.events }

// Close disconnects from the hub.
func (c *Conn) Close() error {
	if !c.markClosed() {
		return nil
	}
	if err := c.dev.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

// deliver queues one notification. The stack reuses its buffer, so the
// payload is copied. Nothing blocks the Bluetooth callback; on overflow the
// frame is dropped and counted.
func (c *Conn) deliver(data []byte) {
	frame := append([]byte(nil), data...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- frame:
	default:
		c.dropped.Add(1)
	}
}

// markClosed closes the event stream once and reports whether this call
// did it.
func (c *Conn) markClosed() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	close(c.events)
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose(c.address)
	}
	return true
}
