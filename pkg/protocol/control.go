package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Control message type bytes. The type byte leads every control
// payload; the remainder is message-specific.
const (
	TypeHello byte = 0x01
	TypePing  byte = 0x02
	TypePong  byte = 0x03
	TypeDrain byte = 0x04
)

// ErrBadControlMessage indicates a control payload that cannot be
// parsed. The connection treats it like any other decode fault.
var ErrBadControlMessage = errors.New("protocol: bad control message")

// maxCompressionAlgos bounds the advertised algorithm list; anything
// longer is hostile or broken.
const maxCompressionAlgos = 16

// Hello is the first message each side sends after the transport
// handshake. It pins the protocol version and advertises the sender's
// compression preference, most preferred first.
type Hello struct {
	Version     Version
	Compression []uint8
}

// Ping carries an opaque identifier echoed by the matching Pong; the
// sender times the round trip.
type Ping struct {
	ID uint64
}

// Pong answers a Ping.
type Pong struct {
	ID uint64
}

// AppendHello serializes h after a TypeHello byte.
func AppendHello(b []byte, h Hello) []byte {
	b = append(b, TypeHello)
	b = binary.AppendUvarint(b, uint64(h.Version.Major))
	b = binary.AppendUvarint(b, uint64(h.Version.Minor))
	b = binary.AppendUvarint(b, uint64(len(h.Compression)))
	return append(b, h.Compression...)
}

// AppendPing serializes p after a TypePing byte.
func AppendPing(b []byte, p Ping) []byte {
	b = append(b, TypePing)
	return binary.AppendUvarint(b, p.ID)
}

// AppendPong serializes p after a TypePong byte.
func AppendPong(b []byte, p Pong) []byte {
	b = append(b, TypePong)
	return binary.AppendUvarint(b, p.ID)
}

// AppendDrain serializes the drain announcement. It has no body; the
// sender promises no further application messages will follow.
func AppendDrain(b []byte) []byte {
	return append(b, TypeDrain)
}

// Message is the decoded form of a control payload. Exactly one field
// besides Type is meaningful, selected by Type.
type Message struct {
	Type  byte
	Hello Hello
	Ping  Ping
	Pong  Pong
}

// Parse decodes one control payload.
func Parse(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrBadControlMessage)
	}
	msg := Message{Type: data[0]}
	body := data[1:]

	switch msg.Type {
	case TypeHello:
		h, err := parseHello(body)
		if err != nil {
			return Message{}, err
		}
		msg.Hello = h
	case TypePing:
		id, err := parseID(body)
		if err != nil {
			return Message{}, err
		}
		msg.Ping = Ping{ID: id}
	case TypePong:
		id, err := parseID(body)
		if err != nil {
			return Message{}, err
		}
		msg.Pong = Pong{ID: id}
	case TypeDrain:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: drain carries no body", ErrBadControlMessage)
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown type 0x%02x", ErrBadControlMessage, msg.Type)
	}
	return msg, nil
}

func parseHello(body []byte) (Hello, error) {
	var h Hello

	major, n := binary.Uvarint(body)
	if n <= 0 || major > 1<<31 {
		return h, fmt.Errorf("%w: bad major version", ErrBadControlMessage)
	}
	body = body[n:]

	minor, n := binary.Uvarint(body)
	if n <= 0 || minor > 1<<31 {
		return h, fmt.Errorf("%w: bad minor version", ErrBadControlMessage)
	}
	body = body[n:]

	count, n := binary.Uvarint(body)
	if n <= 0 || count > maxCompressionAlgos {
		return h, fmt.Errorf("%w: bad compression list", ErrBadControlMessage)
	}
	body = body[n:]
	if uint64(len(body)) != count {
		return h, fmt.Errorf("%w: compression list length %d, have %d bytes", ErrBadControlMessage, count, len(body))
	}

	h.Version = Version{Major: uint32(major), Minor: uint32(minor)}
	h.Compression = append([]uint8(nil), body...)
	return h, nil
}

func parseID(body []byte) (uint64, error) {
	id, n := binary.Uvarint(body)
	if n <= 0 || n != len(body) {
		return 0, fmt.Errorf("%w: bad ping id", ErrBadControlMessage)
	}
	return id, nil
}
