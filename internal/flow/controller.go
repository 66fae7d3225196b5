// Package flow provides byte-based flow control for reliable channels.
package flow

import (
	"context"
	"sync"
)

// Default outbound byte bounds.
const (
	DefaultHighWatermark = 1 << 20 // 1 MiB queued
	DefaultLowWatermark  = 1 << 18 // resume sending below 256 KiB
)

// Controller implements backpressure over an outbound byte budget.
// When the pending byte count reaches the high watermark, new sends block
// until the pending count drains below the low watermark. Reliable-channel
// data is semantically required, so the controller never drops; it only
// delays the caller.
//
// All methods are safe for concurrent use.
type Controller struct {
	mu            sync.Mutex
	highWatermark int64
	lowWatermark  int64
	pending       int64
	blocked       bool
	closed        bool

	// unblockCh is closed when transitioning from blocked to unblocked.
	// A new channel is created after each unblock broadcast.
	unblockCh chan struct{}

	// onBlocked is an optional metrics callback.
	onBlocked func()
}

// NewController creates a flow controller with the given byte watermarks.
// If high <= 0, DefaultHighWatermark is used.
// If low <= 0, DefaultLowWatermark is used.
// If low >= high, low is set to high/4 (minimum 1).
func NewController(high, low int64) *Controller {
	if high <= 0 {
		high = DefaultHighWatermark
	}
	if low <= 0 {
		low = DefaultLowWatermark
	}
	if low >= high {
		low = max(high/4, 1)
	}

	return &Controller{
		highWatermark: high,
		lowWatermark:  low,
		unblockCh:     make(chan struct{}),
	}
}

// SetBlockedCallback sets a callback invoked when flow control engages.
func (fc *Controller) SetBlockedCallback(fn func()) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.onBlocked = fn
}

// Acquire reserves n bytes of outbound budget.
// If the pending count is at or above the high watermark, Acquire blocks
// until the queue drains to the low watermark or the context is cancelled.
// A single message larger than the high watermark is still admitted once
// the queue is empty enough to unblock; the budget is a pacing bound, not
// a hard message-size limit.
func (fc *Controller) Acquire(ctx context.Context, n int64) error {
	for {
		fc.mu.Lock()

		if fc.closed {
			fc.mu.Unlock()
			return context.Canceled
		}

		if !fc.blocked {
			fc.pending += n

			if fc.pending >= fc.highWatermark {
				fc.blocked = true
				if fc.onBlocked != nil {
					fc.onBlocked()
				}
			}

			fc.mu.Unlock()
			return nil
		}

		// Blocked: wait without reserving budget.
		waitCh := fc.unblockCh
		fc.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitCh:
			// Unblock broadcast; retry.
		}
	}
}

// Release returns n bytes of budget after the data has been handed to the
// transport, potentially unblocking waiting senders.
func (fc *Controller) Release(n int64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.pending -= n
	if fc.pending < 0 {
		fc.pending = 0
	}

	if fc.blocked && fc.pending <= fc.lowWatermark {
		fc.blocked = false
		// Broadcast to all waiters by closing the channel.
		close(fc.unblockCh)
		fc.unblockCh = make(chan struct{})
	}
}

// Pending returns the current number of pending bytes.
func (fc *Controller) Pending() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pending
}

// IsBlocked returns true if flow control is currently blocking new sends.
func (fc *Controller) IsBlocked() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.blocked
}

// Close unblocks any waiting Acquire calls. Subsequent Acquire calls fail.
func (fc *Controller) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.closed {
		return
	}
	fc.closed = true
	close(fc.unblockCh)
}
