package channel

import "errors"

// ErrReorderOverflow is returned when an ordered channel would need to
// buffer further ahead than its configured bound. It is a fault: the
// missing message can no longer be delivered without breaking ordering.
var ErrReorderOverflow = errors.New("channel: reorder buffer bound exceeded")

// ReorderBuffer restores send order on an ordered-reliable channel.
//
// Sequence numbers start at 1 and increase by one per message. Messages
// arriving in order pass straight through; messages arriving early are
// held until the gap fills. Holding more than the bound worth of
// lookahead is an overflow.
//
// Not safe for concurrent use; the owning receive loop is the only
// caller.
type ReorderBuffer struct {
	next    uint64
	bound   int
	pending map[uint64][]byte
}

// NewReorderBuffer returns a buffer expecting sequence 1 first. A
// non-positive bound selects DefaultReorderBound.
func NewReorderBuffer(bound int) *ReorderBuffer {
	if bound <= 0 {
		bound = DefaultReorderBound
	}
	return &ReorderBuffer{
		next:    1,
		bound:   bound,
		pending: make(map[uint64][]byte),
	}
}

// Insert accepts a received message and returns the run of messages now
// deliverable in order, possibly empty. Stale and duplicate sequences
// are dropped silently. The buffer takes ownership of payload; callers
// must not reuse it after a successful Insert.
func (b *ReorderBuffer) Insert(seq uint64, payload []byte) ([][]byte, error) {
	if seq < b.next {
		return nil, nil
	}
	if seq == b.next {
		out := [][]byte{payload}
		b.next++
		for {
			p, ok := b.pending[b.next]
			if !ok {
				break
			}
			delete(b.pending, b.next)
			out = append(out, p)
			b.next++
		}
		return out, nil
	}
	if seq-b.next > uint64(b.bound) {
		return nil, ErrReorderOverflow
	}
	if _, dup := b.pending[seq]; dup {
		return nil, nil
	}
	b.pending[seq] = payload
	return nil, nil
}

// Pending reports how many messages are buffered ahead of the gap.
func (b *ReorderBuffer) Pending() int { return len(b.pending) }

// Next reports the next sequence the buffer expects.
func (b *ReorderBuffer) Next() uint64 { return b.next }
