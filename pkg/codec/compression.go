package codec

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the payload size below which compression is never
// attempted; the frame overhead would cancel any gain.
const compressThreshold = 64

// Algorithm identifies a payload compression algorithm.
// The numeric values are wire-stable.
type Algorithm uint8

const (
	// None sends the payload uncompressed.
	None Algorithm = 0

	// Zstd is zstandard, the best ratio for snapshot-sized payloads.
	Zstd Algorithm = 1

	// S2 is the snappy-compatible s2 format, cheapest per byte for
	// latency-critical frames.
	S2 Algorithm = 2
)

// String returns a human-readable name for the algorithm.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	default:
		return fmt.Sprintf("Algorithm(%d)", a)
	}
}

func (a Algorithm) valid() bool {
	return a == None || a == Zstd || a == S2
}

// Negotiate selects the compression algorithm for a connection: the
// highest-priority entry of the local list that the remote side also
// supports, falling back to None when there is no overlap. The function
// is pure; both sides compute the same result from the same two lists
// when local is the dialer's list.
func Negotiate(local, remote []Algorithm) Algorithm {
	for _, l := range local {
		if !l.valid() || l == None {
			continue
		}
		for _, r := range remote {
			if l == r {
				return l
			}
		}
	}
	return None
}

// zstdCoder wraps a shared zstd encoder/decoder pair. EncodeAll and
// DecodeAll on these are safe for concurrent use.
type zstdCoder struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCoder(maxDecompressed int) (*zstdCoder, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(uint64(maxDecompressed)),
	)
	if err != nil {
		return nil, err
	}
	return &zstdCoder{enc: enc, dec: dec}, nil
}

// compress returns the compressed payload in a pooled buffer.
func (c *Codec) compress(algo Algorithm, payload []byte) (*[]byte, error) {
	switch algo {
	case Zstd:
		buf := c.pool.Get(len(payload))
		*buf = c.zstd.enc.EncodeAll(payload, *buf)
		return buf, nil
	case S2:
		buf := c.pool.Get(s2.MaxEncodedLen(len(payload)))
		*buf = (*buf)[:cap(*buf)]
		out := s2.Encode(*buf, payload)
		// s2.Encode allocates a fresh slice when dst is too small; keep
		// whichever backing array it actually used.
		*buf = out
		return buf, nil
	default:
		return nil, fmt.Errorf("compress with %s", algo)
	}
}

// decompress inflates body into a pooled buffer, enforcing the declared
// size exactly.
func (c *Codec) decompress(algo Algorithm, body []byte, declared int) (*[]byte, error) {
	switch algo {
	case Zstd:
		buf := c.pool.Get(declared)
		out, err := c.zstd.dec.DecodeAll(body, *buf)
		if err != nil {
			c.pool.Put(buf)
			return nil, fmt.Errorf("%w: zstd: %v", ErrMalformedFrame, err)
		}
		if len(out) != declared {
			c.pool.Put(buf)
			return nil, fmt.Errorf("%w: declared %d bytes, inflated %d", ErrMalformedFrame, declared, len(out))
		}
		*buf = out
		return buf, nil

	case S2:
		actual, err := s2.DecodedLen(body)
		if err != nil {
			return nil, fmt.Errorf("%w: s2: %v", ErrMalformedFrame, err)
		}
		if actual != declared {
			return nil, fmt.Errorf("%w: declared %d bytes, s2 header says %d", ErrMalformedFrame, declared, actual)
		}
		buf := c.pool.GetExact(declared)
		out, err := s2.Decode(*buf, body)
		if err != nil {
			c.pool.Put(buf)
			return nil, fmt.Errorf("%w: s2: %v", ErrMalformedFrame, err)
		}
		*buf = out
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: decompress with %s", ErrMalformedFrame, algo)
	}
}
