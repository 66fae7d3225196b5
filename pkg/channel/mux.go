package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blockberries/wireberry/internal/flow"
)

// ErrUnknownChannel is returned for a tag no Definition covers.
var ErrUnknownChannel = errors.New("channel: unknown channel tag")

// Multiplexer tracks per-channel delivery state for one connection:
// outbound sequence assignment and byte backpressure, inbound
// reordering and duplicate suppression.
//
// The outbound side is safe for concurrent senders. The inbound side
// assumes one receive loop per channel, which is how the connection
// layer drives it.
type Multiplexer struct {
	defs map[Tag]Definition
	out  map[Tag]*outState
	in   map[Tag]*inState
}

type outState struct {
	mu   sync.Mutex
	seq  uint64
	flow *flow.Controller
}

type inState struct {
	mu      sync.Mutex
	reorder *ReorderBuffer
	dedupe  *DedupeWindow
}

// NewMultiplexer validates the definitions and builds delivery state
// for each channel. defaultOutbound bounds queued outbound bytes for
// reliable channels whose Definition leaves OutboundBytes zero.
func NewMultiplexer(defs []Definition, defaultOutbound int64) (*Multiplexer, error) {
	if len(defs) == 0 {
		return nil, errors.New("channel: no channels defined")
	}
	m := &Multiplexer{
		defs: make(map[Tag]Definition, len(defs)),
		out:  make(map[Tag]*outState, len(defs)),
		in:   make(map[Tag]*inState, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.defs[d.Tag]; dup {
			return nil, fmt.Errorf("channel: duplicate tag %d", d.Tag)
		}
		m.defs[d.Tag] = d

		o := &outState{}
		if d.Class.Reliable() {
			limit := d.OutboundBytes
			if limit == 0 {
				limit = defaultOutbound
			}
			o.flow = flow.NewController(limit, limit/4)
		}
		m.out[d.Tag] = o

		in := &inState{}
		switch d.Class {
		case ReliableOrdered:
			in.reorder = NewReorderBuffer(d.ReorderBound)
		case ReliableUnordered:
			in.dedupe = NewDedupeWindow()
		}
		m.in[d.Tag] = in
	}
	return m, nil
}

// Definition returns the definition for tag.
func (m *Multiplexer) Definition(tag Tag) (Definition, bool) {
	d, ok := m.defs[tag]
	return d, ok
}

// Definitions returns all channel definitions.
func (m *Multiplexer) Definitions() []Definition {
	out := make([]Definition, 0, len(m.defs))
	for _, d := range m.defs {
		out = append(out, d)
	}
	return out
}

// AcquireSend reserves n outbound bytes on tag, blocking while the
// channel's queued bytes sit above its bound, and assigns the message
// its sequence number. hasSeq is false for unreliable channels, whose
// messages carry no sequence and never block. release must be called
// once the bytes have left the send queue.
func (m *Multiplexer) AcquireSend(ctx context.Context, tag Tag, n int64) (seq uint64, hasSeq bool, release func(), err error) {
	d, ok := m.defs[tag]
	if !ok {
		return 0, false, nil, ErrUnknownChannel
	}
	o := m.out[tag]
	if !d.Class.Reliable() {
		return 0, false, func() {}, nil
	}
	if err := o.flow.Acquire(ctx, n); err != nil {
		return 0, false, nil, err
	}
	o.mu.Lock()
	o.seq++
	seq = o.seq
	o.mu.Unlock()
	return seq, true, func() { o.flow.Release(n) }, nil
}

// Deliver accepts a received message on tag and returns the payloads
// now deliverable to the application: the message itself, zero or more
// previously buffered messages it unblocked, or nothing when it was a
// duplicate or is being held for ordering. The multiplexer takes
// ownership of payload.
//
// ErrReorderOverflow means the channel can no longer honor its ordering
// contract; the connection must fault.
func (m *Multiplexer) Deliver(tag Tag, seq uint64, hasSeq bool, payload []byte) ([][]byte, error) {
	d, ok := m.defs[tag]
	if !ok {
		return nil, ErrUnknownChannel
	}
	in := m.in[tag]
	switch d.Class {
	case ReliableOrdered:
		if !hasSeq {
			return nil, fmt.Errorf("channel %d: %w: missing sequence on %s frame", tag, ErrMissingSequence, d.Class)
		}
		in.mu.Lock()
		out, err := in.reorder.Insert(seq, payload)
		in.mu.Unlock()
		return out, err
	case ReliableUnordered:
		if !hasSeq {
			return nil, fmt.Errorf("channel %d: %w: missing sequence on %s frame", tag, ErrMissingSequence, d.Class)
		}
		in.mu.Lock()
		fresh := in.dedupe.Observe(seq)
		in.mu.Unlock()
		if !fresh {
			return nil, nil
		}
		return [][]byte{payload}, nil
	default:
		return [][]byte{payload}, nil
	}
}

// ErrMissingSequence is returned when a reliable frame arrives without
// the sequence number its class requires.
var ErrMissingSequence = errors.New("channel: missing sequence number")

// SetBlockedCallback installs fn to be invoked whenever a reliable
// channel's senders begin blocking on backpressure.
func (m *Multiplexer) SetBlockedCallback(fn func(tag Tag)) {
	for tag, o := range m.out {
		if o.flow == nil {
			continue
		}
		t := tag
		o.flow.SetBlockedCallback(func() { fn(t) })
	}
}

// QueuedBytes reports the outbound bytes currently reserved on tag.
// Unreliable channels always report zero.
func (m *Multiplexer) QueuedBytes(tag Tag) int64 {
	o, ok := m.out[tag]
	if !ok || o.flow == nil {
		return 0
	}
	return o.flow.Pending()
}

// Close releases every blocked sender. Subsequent AcquireSend calls on
// reliable channels fail.
func (m *Multiplexer) Close() {
	for _, o := range m.out {
		if o.flow != nil {
			o.flow.Close()
		}
	}
}
