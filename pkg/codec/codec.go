// Package codec frames application payloads for the wire.
//
// A frame carries a channel tag, an optional per-message sequence number,
// an optional compression marker, and the payload bytes. Payload encoding
// itself is the consumer's concern; the codec only frames opaque bytes.
//
// Buffers are drawn from a shared pool; every encode and decode pairs a
// buffer acquisition with a guaranteed release, including on error paths.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/blockberries/wireberry/internal/pool"
)

// Defaults for frame limits.
const (
	// DefaultMaxPayloadSize bounds the encoded (on-wire) payload.
	DefaultMaxPayloadSize = 1 << 20

	// DefaultMaxDecompressedSize bounds the declared and actual
	// decompressed size, rejecting decompression-bomb payloads.
	DefaultMaxDecompressedSize = 4 << 20
)

// Frame header flag layout.
const (
	flagAlgorithmMask = 0x07 // bits 0-2: compression algorithm
	flagHasSequence   = 0x08 // bit 3: sequence number present
)

// Sentinel errors for decode failures. Both are fatal to the offending
// connection, never to the endpoint.
var (
	// ErrMalformedFrame indicates a frame header or body that cannot be
	// parsed.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrDecompressionLimit indicates the declared or actual decompressed
	// size exceeds the configured cap.
	ErrDecompressionLimit = errors.New("decompressed size exceeds limit")

	// ErrPayloadTooLarge indicates an encode payload above the configured
	// maximum.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// Frame is one decoded logical unit.
type Frame struct {
	// Channel is the logical channel tag.
	Channel uint8

	// HasSeq reports whether the frame carried an explicit sequence
	// number (reliable channels only).
	HasSeq bool

	// Seq is the per-channel sequence number, valid when HasSeq is set.
	Seq uint64

	// Algorithm is the compression that was applied on the wire.
	Algorithm Algorithm

	// Payload is the decompressed payload. When backed by a pooled
	// buffer, Release must be called after the payload is consumed.
	Payload []byte

	buf *[]byte
	p   *pool.BufferPool
}

// Release returns the frame's backing buffer to the pool, if any.
// The payload must not be used afterwards. Release is idempotent.
func (f *Frame) Release() {
	if f.buf != nil {
		f.p.Put(f.buf)
		f.buf = nil
		f.Payload = nil
	}
}

// Codec encodes and decodes frames with a fixed decompression cap.
// A single Codec is shared by all connections of an endpoint and is safe
// for concurrent use.
type Codec struct {
	pool            *pool.BufferPool
	maxPayload      int
	maxDecompressed int
	zstd            *zstdCoder
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxPayloadSize sets the maximum encoded payload size.
func WithMaxPayloadSize(n int) Option {
	return func(c *Codec) { c.maxPayload = n }
}

// WithMaxDecompressedSize sets the decompression-bomb cap.
func WithMaxDecompressedSize(n int) Option {
	return func(c *Codec) { c.maxDecompressed = n }
}

// New creates a codec backed by the given buffer pool.
// A nil pool uses a private one.
func New(p *pool.BufferPool, opts ...Option) (*Codec, error) {
	if p == nil {
		p = pool.NewBufferPool()
	}
	c := &Codec{
		pool:            p,
		maxPayload:      DefaultMaxPayloadSize,
		maxDecompressed: DefaultMaxDecompressedSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxPayload <= 0 || c.maxDecompressed <= 0 {
		return nil, fmt.Errorf("codec limits must be positive (payload %d, decompressed %d)",
			c.maxPayload, c.maxDecompressed)
	}

	z, err := newZstdCoder(c.maxDecompressed)
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}
	c.zstd = z
	return c, nil
}

// Encode frames payload for the wire and returns a pooled buffer.
// The caller must hand the buffer back via Release once written out.
//
// The requested algorithm is advisory: tiny payloads and payloads that do
// not shrink are sent uncompressed regardless.
func (c *Codec) Encode(channel uint8, seq uint64, hasSeq bool, payload []byte, algo Algorithm) (*[]byte, error) {
	if len(payload) > c.maxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), c.maxPayload)
	}

	body := payload
	var scratch *[]byte
	if algo != None && len(payload) >= compressThreshold {
		var err error
		scratch, err = c.compress(algo, payload)
		if err != nil {
			if scratch != nil {
				c.pool.Put(scratch)
			}
			return nil, err
		}
		if len(*scratch) < len(payload) {
			body = *scratch
		} else {
			// Compression did not help; send raw.
			c.pool.Put(scratch)
			scratch = nil
			algo = None
		}
	} else {
		algo = None
	}

	// flags + channel + seq + declared size + body length + body
	out := c.pool.Get(1 + binary.MaxVarintLen64*4 + len(body))

	flags := byte(algo) & flagAlgorithmMask
	if hasSeq {
		flags |= flagHasSequence
	}
	*out = append(*out, flags)
	*out = binary.AppendUvarint(*out, uint64(channel))
	if hasSeq {
		*out = binary.AppendUvarint(*out, seq)
	}
	if algo != None {
		*out = binary.AppendUvarint(*out, uint64(len(payload)))
	}
	*out = binary.AppendUvarint(*out, uint64(len(body)))
	*out = append(*out, body...)

	if scratch != nil {
		c.pool.Put(scratch)
	}
	return out, nil
}

// Release returns a buffer produced by Encode to the pool.
func (c *Codec) Release(buf *[]byte) {
	c.pool.Put(buf)
}

// MaxFrameSize bounds the encoded size of any frame this codec can
// produce: the payload cap plus header slack. Readers use it to reject
// oversized length prefixes before buffering.
func (c *Codec) MaxFrameSize() int {
	return c.maxPayload + 1 + binary.MaxVarintLen64*4
}

// Decode parses a single frame. The input must contain exactly one frame;
// trailing bytes are treated as malformed.
//
// On compressed frames the declared decompressed size is validated
// against the cap before any allocation proportional to it, so a
// malicious declaration cannot drive memory usage.
func (c *Codec) Decode(data []byte) (*Frame, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformedFrame)
	}

	flags := data[0]
	rest := data[1:]

	algo := Algorithm(flags & flagAlgorithmMask)
	if !algo.valid() {
		return nil, fmt.Errorf("%w: unknown compression algorithm %d", ErrMalformedFrame, algo)
	}
	hasSeq := flags&flagHasSequence != 0
	if flags&^(flagAlgorithmMask|flagHasSequence) != 0 {
		return nil, fmt.Errorf("%w: reserved flag bits set", ErrMalformedFrame)
	}

	ch, n := binary.Uvarint(rest)
	if n <= 0 || ch > 0xFF {
		return nil, fmt.Errorf("%w: bad channel tag", ErrMalformedFrame)
	}
	rest = rest[n:]

	var seq uint64
	if hasSeq {
		seq, n = binary.Uvarint(rest)
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad sequence", ErrMalformedFrame)
		}
		rest = rest[n:]
	}

	var declared uint64
	if algo != None {
		declared, n = binary.Uvarint(rest)
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad decompressed size", ErrMalformedFrame)
		}
		if declared > uint64(c.maxDecompressed) {
			return nil, fmt.Errorf("%w: declared %d > cap %d", ErrDecompressionLimit, declared, c.maxDecompressed)
		}
		rest = rest[n:]
	}

	bodyLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad body length", ErrMalformedFrame)
	}
	rest = rest[n:]

	if uint64(len(rest)) != bodyLen {
		return nil, fmt.Errorf("%w: body length %d, have %d bytes", ErrMalformedFrame, bodyLen, len(rest))
	}

	f := &Frame{
		Channel:   uint8(ch),
		HasSeq:    hasSeq,
		Seq:       seq,
		Algorithm: algo,
	}

	if algo == None {
		f.Payload = rest
		return f, nil
	}

	out, err := c.decompress(algo, rest, int(declared))
	if err != nil {
		if out != nil {
			c.pool.Put(out)
		}
		return nil, err
	}
	f.Payload = *out
	f.buf = out
	f.p = c.pool
	return f, nil
}
