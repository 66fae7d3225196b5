// Package eventdispatch fans connection lifecycle events out to the
// application's event channel.
package eventdispatch

import (
	"sync"
	"sync/atomic"
)

// Dispatcher buffers events for the application. Emission never blocks
// a connection goroutine: when the consumer falls behind and the buffer
// fills, events are dropped and counted.
type Dispatcher[E any] struct {
	events  chan E
	dropped atomic.Uint64
	mu      sync.Mutex
	closed  bool
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher[E any](bufferSize int) *Dispatcher[E] {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Dispatcher[E]{
		events: make(chan E, bufferSize),
	}
}

// Emit delivers an event without blocking. Events emitted after Close
// or into a full buffer are dropped.
func (d *Dispatcher[E]) Emit(event E) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
	}
}

// Events returns the channel the application consumes. It is closed
// when the dispatcher is closed.
func (d *Dispatcher[E]) Events() <-chan E {
	return d.events
}

// Dropped reports how many events were discarded because the consumer
// fell behind.
func (d *Dispatcher[E]) Dropped() uint64 {
	return d.dropped.Load()
}

// Close closes the events channel. Safe to call multiple times.
func (d *Dispatcher[E]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

// IsClosed returns true if the dispatcher has been closed.
func (d *Dispatcher[E]) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
