package hub

import (
	"sync"
	"sync/atomic"
)

// DefaultTopicBuffer is the per-subscriber buffer used when Options leaves
// TopicBuffer at zero.
const DefaultTopicBuffer = 16

// Topic is a drop-oldest broadcast channel with one publisher and any number
// of subscribers. Each subscriber gets its own bounded buffer; when it is
// full the oldest item is discarded to make room, so Publish never blocks.
type Topic[T any] struct {
	mu     sync.RWMutex
	subs   map[*Receiver[T]]struct{}
	buffer int
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewTopic creates a topic whose subscribers buffer up to buffer items.
// A buffer below 1 uses DefaultTopicBuffer.
func NewTopic[T any](buffer int) *Topic[T] {
	if buffer < 1 {
		buffer = DefaultTopicBuffer
	}
	return &Topic[T]{
		subs:   make(map[*Receiver[T]]struct{}),
		buffer: buffer,
	}
}

// Receiver is one subscription to a Topic. Read items from C; call Close
// to unsubscribe. C is closed when the receiver or the topic closes.
type Receiver[T any] struct {
	C <-chan T

	ch    chan T
	topic *Topic[T]
	once  sync.Once
}

// Subscribe registers a new receiver. Subscribing to a closed topic returns
// a receiver whose channel is already closed.
func (t *Topic[T]) Subscribe() *Receiver[T] {
	ch := make(chan T, t.buffer)
	r := &Receiver[T]{C: ch, ch: ch, topic: t}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		r.once.Do(func() { close(ch) })
		return r
	}
	t.subs[r] = struct{}{}
	return r
}

// Publish delivers v to every current subscriber and returns how many
// received it. Zero subscribers is not an error.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0
	}

	t.published.Add(1)
	delivered := 0
	for r := range t.subs {
		if t.offer(r.ch, v) {
			delivered++
		}
	}
	return delivered
}

// offer sends without blocking, evicting the oldest buffered item if needed.
// A concurrent reader can drain the slot between the two attempts, so the
// retry is itself non-blocking.
func (t *Topic[T]) offer(ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
	}
	select {
	case <-ch:
		t.dropped.Add(1)
	default:
	}
	select {
	case ch <- v:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Subscribers returns the current subscriber count.
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Published returns how many items have been published.
func (t *Topic[T]) Published() uint64 { return t.published.Load() }

// Dropped returns how many items were evicted from full subscriber buffers.
func (t *Topic[T]) Dropped() uint64 { return t.dropped.Load() }

// Close closes every subscriber channel. Later publishes are ignored.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for r := range t.subs {
		delete(t.subs, r)
		r.once.Do(func() { close(r.ch) })
	}
}

// Close unsubscribes the receiver and closes C. Safe to call more than once
// and after the topic itself has closed.
func (r *Receiver[T]) Close() {
	t := r.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, r)
	r.once.Do(func() { close(r.ch) })
}
