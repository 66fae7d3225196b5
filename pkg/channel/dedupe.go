package channel

// dedupeWindowBits is the span of recent sequence numbers tracked for
// duplicate suppression on reliable-unordered channels. Anything older
// than the window is treated as a duplicate.
const dedupeWindowBits = 1024

// DedupeWindow suppresses duplicate sequence numbers within a sliding
// window, in the manner of an anti-replay bitmap. Sequences start at 1.
//
// Not safe for concurrent use.
type DedupeWindow struct {
	highest uint64
	bitmap  [dedupeWindowBits / 64]uint64
}

// NewDedupeWindow returns an empty window.
func NewDedupeWindow() *DedupeWindow {
	return &DedupeWindow{}
}

// Observe records seq and reports whether it is fresh. Duplicates and
// sequences older than the window report false.
func (w *DedupeWindow) Observe(seq uint64) bool {
	if seq == 0 {
		return false
	}
	if seq > w.highest {
		shift := seq - w.highest
		if shift >= dedupeWindowBits {
			clear(w.bitmap[:])
		} else {
			w.shiftLeft(shift)
		}
		w.highest = seq
		w.setBit(0)
		return true
	}
	age := w.highest - seq
	if age >= dedupeWindowBits {
		return false
	}
	if w.testBit(age) {
		return false
	}
	w.setBit(age)
	return true
}

// Bit i tracks sequence highest-i. Bit 0 lives in the lowest bit of
// word 0.

func (w *DedupeWindow) setBit(i uint64) {
	w.bitmap[i/64] |= 1 << (i % 64)
}

func (w *DedupeWindow) testBit(i uint64) bool {
	return w.bitmap[i/64]&(1<<(i%64)) != 0
}

func (w *DedupeWindow) shiftLeft(n uint64) {
	words := n / 64
	bits := n % 64
	if words > 0 {
		for i := len(w.bitmap) - 1; i >= 0; i-- {
			if uint64(i) >= words {
				w.bitmap[i] = w.bitmap[i-int(words)]
			} else {
				w.bitmap[i] = 0
			}
		}
	}
	if bits > 0 {
		for i := len(w.bitmap) - 1; i > 0; i-- {
			w.bitmap[i] = w.bitmap[i]<<bits | w.bitmap[i-1]>>(64-bits)
		}
		w.bitmap[0] <<= bits
	}
}
