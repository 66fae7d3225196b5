// Package fuzz provides fuzz tests for Wireberry components.
// Run with: go test -fuzz=. -fuzztime=30s ./test/fuzz/
package fuzz

import (
	"bytes"
	"testing"

	"github.com/blockberries/wireberry/pkg/protocol"
)

// FuzzControlParse tests control message parsing with malformed data.
// This simulates what happens when a malicious peer sends corrupted
// control payloads after the transport handshake.
func FuzzControlParse(f *testing.F) {
	// Add seed corpus

	// Valid hello
	hello := protocol.Hello{
		Version:     protocol.Current,
		Compression: []uint8{1, 2},
	}
	f.Add(protocol.AppendHello(nil, hello))

	// Hello with no compression algorithms
	f.Add(protocol.AppendHello(nil, protocol.Hello{Version: protocol.Current}))

	// Valid ping and pong
	f.Add(protocol.AppendPing(nil, protocol.Ping{ID: 42}))
	f.Add(protocol.AppendPong(nil, protocol.Pong{ID: 1 << 60}))

	// Valid drain
	f.Add(protocol.AppendDrain(nil))

	// Empty payload
	f.Add([]byte{})

	// Unknown type byte
	f.Add([]byte{0xFF})
	f.Add([]byte{0x05, 0x01, 0x02})

	// Truncated hello (type byte only)
	f.Add([]byte{0x01})

	// Hello with truncated varint
	f.Add([]byte{0x01, 0x80})
	f.Add([]byte{0x01, 0x01, 0x80, 0x80})

	// Hello with huge compression list count
	f.Add([]byte{0x01, 0x01, 0x00, 0xFF, 0x01})

	// Hello claiming more algorithms than bytes present
	f.Add([]byte{0x01, 0x01, 0x00, 0x05, 0x01})

	// Ping with trailing garbage after the ID
	f.Add([]byte{0x02, 0x2A, 0xDE, 0xAD})

	// Drain with an unexpected body
	f.Add([]byte{0x04, 0x00})

	// Random garbage
	f.Add([]byte{0xDE, 0xAD, 0xBE, 0xEF})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Parse must not panic regardless of input
		msg, err := protocol.Parse(data)
		if err != nil {
			return
		}

		// Successfully parsed messages must re-serialize to a parseable
		// payload carrying the same content.
		var out []byte
		switch msg.Type {
		case protocol.TypeHello:
			out = protocol.AppendHello(nil, msg.Hello)
		case protocol.TypePing:
			out = protocol.AppendPing(nil, msg.Ping)
		case protocol.TypePong:
			out = protocol.AppendPong(nil, msg.Pong)
		case protocol.TypeDrain:
			out = protocol.AppendDrain(nil)
		default:
			t.Fatalf("Parse accepted unknown type 0x%02x", msg.Type)
		}

		again, err := protocol.Parse(out)
		if err != nil {
			t.Fatalf("re-parse of serialized message failed: %v", err)
		}
		if again.Type != msg.Type {
			t.Errorf("type changed across round trip: 0x%02x != 0x%02x", again.Type, msg.Type)
		}
		if msg.Type == protocol.TypeHello {
			if again.Hello.Version != msg.Hello.Version {
				t.Errorf("hello version changed across round trip")
			}
			if !bytes.Equal(again.Hello.Compression, msg.Hello.Compression) {
				t.Errorf("hello compression list changed across round trip")
			}
		}
	})
}

// FuzzHelloVersionNegotiation checks that arbitrary advertised versions
// never panic the compatibility check.
func FuzzHelloVersionNegotiation(f *testing.F) {
	f.Add(uint32(1), uint32(0))
	f.Add(uint32(1), uint32(7))
	f.Add(uint32(2), uint32(0))
	f.Add(uint32(0), uint32(0))
	f.Add(uint32(1<<31-1), uint32(1<<31-1))

	f.Fuzz(func(t *testing.T, major, minor uint32) {
		v := protocol.Version{Major: major, Minor: minor}

		compatible := protocol.Current.Compatible(v)
		if compatible != (v.Major == protocol.Current.Major) {
			t.Errorf("Compatible(%s) = %v, want major-version match", v, compatible)
		}

		// The version must survive hello serialization when in range.
		if major > 1<<31 || minor > 1<<31 {
			return
		}
		data := protocol.AppendHello(nil, protocol.Hello{Version: v})
		msg, err := protocol.Parse(data)
		if err != nil {
			t.Fatalf("Parse of serialized hello failed: %v", err)
		}
		if msg.Hello.Version != v {
			t.Errorf("version %s changed to %s across round trip", v, msg.Hello.Version)
		}
	})
}
