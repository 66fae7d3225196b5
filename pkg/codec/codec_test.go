package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New(nil, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCodec_RoundTrip_Uncompressed(t *testing.T) {
	c := newTestCodec(t)
	payload := []byte("player input frame")

	buf, err := c.Encode(3, 0, false, payload, None)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	defer c.Release(buf)

	f, err := c.Decode(*buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer f.Release()

	if f.Channel != 3 {
		t.Errorf("Channel = %d, want 3", f.Channel)
	}
	if f.HasSeq {
		t.Error("HasSeq = true, want false")
	}
	if f.Algorithm != None {
		t.Errorf("Algorithm = %s, want none", f.Algorithm)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("Payload = %q, want %q", f.Payload, payload)
	}
}

func TestCodec_RoundTrip_WithSequence(t *testing.T) {
	c := newTestCodec(t)

	buf, err := c.Encode(7, 42, true, []byte("reliable update"), None)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	defer c.Release(buf)

	f, err := c.Decode(*buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer f.Release()

	if !f.HasSeq || f.Seq != 42 {
		t.Errorf("sequence = (%v, %d), want (true, 42)", f.HasSeq, f.Seq)
	}
}

func TestCodec_RoundTrip_Compressed(t *testing.T) {
	for _, algo := range []Algorithm{Zstd, S2} {
		t.Run(algo.String(), func(t *testing.T) {
			c := newTestCodec(t)

			// Highly compressible payload above the threshold.
			payload := bytes.Repeat([]byte("snapshot "), 512)

			buf, err := c.Encode(1, 9, true, payload, algo)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			defer c.Release(buf)

			if len(*buf) >= len(payload) {
				t.Errorf("encoded size %d not smaller than payload %d", len(*buf), len(payload))
			}

			f, err := c.Decode(*buf)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			defer f.Release()

			if f.Algorithm != algo {
				t.Errorf("Algorithm = %s, want %s", f.Algorithm, algo)
			}
			if !bytes.Equal(f.Payload, payload) {
				t.Error("decompressed payload mismatch")
			}
		})
	}
}

func TestCodec_SmallPayloadSkipsCompression(t *testing.T) {
	c := newTestCodec(t)

	buf, err := c.Encode(1, 0, false, []byte("tiny"), Zstd)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	defer c.Release(buf)

	f, err := c.Decode(*buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer f.Release()

	if f.Algorithm != None {
		t.Errorf("tiny payload was compressed with %s", f.Algorithm)
	}
}

func TestCodec_IncompressiblePayloadSentRaw(t *testing.T) {
	c := newTestCodec(t)

	// Random-ish bytes do not shrink under zstd.
	payload := make([]byte, 4096)
	state := uint32(0x12345678)
	for i := range payload {
		state = state*1664525 + 1013904223
		payload[i] = byte(state >> 24)
	}

	buf, err := c.Encode(1, 0, false, payload, Zstd)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	defer c.Release(buf)

	f, err := c.Decode(*buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer f.Release()

	if f.Algorithm != None {
		t.Errorf("incompressible payload carried algorithm %s", f.Algorithm)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Error("payload mismatch")
	}
}

func TestCodec_Encode_PayloadTooLarge(t *testing.T) {
	c := newTestCodec(t, WithMaxPayloadSize(16))

	_, err := c.Encode(1, 0, false, make([]byte, 17), None)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Encode() error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestCodec_Decode_Malformed(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x00}},
		{"unknown algorithm", []byte{0x07, 0x01, 0x00}},
		{"reserved flags", []byte{0x80, 0x01, 0x00}},
		{"truncated body", []byte{0x00, 0x01, 0x0A, 0x01}},
		{"trailing bytes", []byte{0x00, 0x01, 0x01, 0xAA, 0xBB}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tt.data)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestCodec_Decode_DecompressionBomb(t *testing.T) {
	c := newTestCodec(t, WithMaxDecompressedSize(1024))

	// Hand-build a zstd frame declaring a huge decompressed size. The
	// declared size must be rejected before any allocation of that size.
	var data []byte
	data = append(data, byte(Zstd)) // flags: zstd, no seq
	data = binary.AppendUvarint(data, 1)
	data = binary.AppendUvarint(data, 1<<40) // declared decompressed size
	data = binary.AppendUvarint(data, 4)
	data = append(data, 0xde, 0xad, 0xbe, 0xef)

	_, err := c.Decode(data)
	if !errors.Is(err, ErrDecompressionLimit) {
		t.Fatalf("Decode() error = %v, want ErrDecompressionLimit", err)
	}
}

func TestCodec_Decode_LyingDeclaredSize(t *testing.T) {
	c := newTestCodec(t)

	// Compress a real payload, then tamper with the declared size so the
	// inflated length no longer matches.
	payload := bytes.Repeat([]byte("x"), 1024)
	buf, err := c.Encode(1, 0, false, payload, Zstd)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release(buf)

	wire := *buf
	if Algorithm(wire[0]&0x07) != Zstd {
		t.Skip("payload was not compressed")
	}

	// Rebuild the frame with declared size off by one.
	rest := wire[1:]
	ch, n := binary.Uvarint(rest)
	rest = rest[n:]
	declared, n := binary.Uvarint(rest)
	rest = rest[n:]
	bodyLen, n := binary.Uvarint(rest)
	body := rest[n:]
	if uint64(len(body)) != bodyLen {
		t.Fatal("test setup: bad frame")
	}

	var tampered []byte
	tampered = append(tampered, byte(Zstd))
	tampered = binary.AppendUvarint(tampered, ch)
	tampered = binary.AppendUvarint(tampered, declared-1)
	tampered = binary.AppendUvarint(tampered, bodyLen)
	tampered = append(tampered, body...)

	if _, err := c.Decode(tampered); err == nil {
		t.Error("Decode() accepted a frame with lying declared size")
	}
}

func TestCodec_Frame_ReleaseIdempotent(t *testing.T) {
	c := newTestCodec(t)
	payload := bytes.Repeat([]byte("ab"), 256)

	buf, err := c.Encode(1, 0, false, payload, S2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release(buf)

	f, err := c.Decode(*buf)
	if err != nil {
		t.Fatal(err)
	}
	f.Release()
	f.Release() // must not panic or double-free
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name   string
		local  []Algorithm
		remote []Algorithm
		want   Algorithm
	}{
		{"overlap picks local priority", []Algorithm{Zstd, S2}, []Algorithm{S2, Zstd}, Zstd},
		{"second choice", []Algorithm{Zstd, S2}, []Algorithm{S2}, S2},
		{"no overlap", []Algorithm{Zstd}, []Algorithm{S2}, None},
		{"empty local", nil, []Algorithm{Zstd}, None},
		{"empty remote", []Algorithm{Zstd}, nil, None},
		{"none never negotiated explicitly", []Algorithm{None, S2}, []Algorithm{None, S2}, S2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Negotiate(tt.local, tt.remote)
			if got != tt.want {
				t.Errorf("Negotiate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func BenchmarkCodec_EncodeDecode(b *testing.B) {
	c, err := New(nil)
	if err != nil {
		b.Fatal(err)
	}
	payload := bytes.Repeat([]byte("entity state "), 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := c.Encode(2, uint64(i), true, payload, S2)
		if err != nil {
			b.Fatal(err)
		}
		f, err := c.Decode(*buf)
		if err != nil {
			b.Fatal(err)
		}
		f.Release()
		c.Release(buf)
	}
}
