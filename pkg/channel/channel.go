// Package channel maps logical channel tags to delivery contracts.
//
// A channel is an independently-ordered sub-stream of a connection,
// tagged by purpose, with a reliability class fixed at configuration
// time. Reliable channels ride one transport stream each; unreliable
// channels ride datagrams. The multiplexer owns per-channel sequencing,
// reordering, duplicate suppression, and outbound backpressure; the
// connection layer does the actual I/O.
package channel

import (
	"fmt"
)

// Tag identifies a logical channel within a connection.
type Tag uint8

// ControlTag is reserved for the transport's own control traffic
// (hello exchange, keepalive). Applications configure tags from 1 up.
const ControlTag Tag = 0

// Class is a channel's delivery contract.
type Class uint8

const (
	// ReliableOrdered delivers every message, strictly in send order.
	ReliableOrdered Class = iota

	// ReliableUnordered delivers every message at most once, in any
	// order; explicit sequence numbers let the consumer detect stale
	// retransmissions.
	ReliableUnordered

	// Unreliable delivers messages best-effort: they may be dropped,
	// duplicated, or reordered by the network.
	Unreliable
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case ReliableOrdered:
		return "reliable-ordered"
	case ReliableUnordered:
		return "reliable-unordered"
	case Unreliable:
		return "unreliable"
	default:
		return fmt.Sprintf("Class(%d)", c)
	}
}

// Reliable reports whether the class guarantees delivery.
func (c Class) Reliable() bool {
	return c == ReliableOrdered || c == ReliableUnordered
}

// Definition fixes a channel's contract and resource bounds.
type Definition struct {
	// Tag is the channel identifier.
	Tag Tag

	// Class is the delivery contract.
	Class Class

	// ReorderBound caps how far ahead of the next expected sequence an
	// ordered-reliable channel may buffer. Exceeding it faults the
	// connection. Zero selects DefaultReorderBound.
	ReorderBound int

	// OutboundBytes bounds the channel's queued outbound bytes before
	// sends block (reliable classes only). Zero selects the endpoint
	// default.
	OutboundBytes int64
}

// DefaultReorderBound is the default reorder-buffer bound for
// ordered-reliable channels.
const DefaultReorderBound = 256

// Validate checks the definition for internal consistency.
func (d Definition) Validate() error {
	switch d.Class {
	case ReliableOrdered, ReliableUnordered, Unreliable:
	default:
		return fmt.Errorf("channel %d: invalid class %d", d.Tag, d.Class)
	}
	if d.ReorderBound < 0 {
		return fmt.Errorf("channel %d: negative reorder bound", d.Tag)
	}
	if d.OutboundBytes < 0 {
		return fmt.Errorf("channel %d: negative outbound byte bound", d.Tag)
	}
	if d.Class != ReliableOrdered && d.ReorderBound != 0 {
		return fmt.Errorf("channel %d: reorder bound only applies to %s", d.Tag, ReliableOrdered)
	}
	return nil
}
