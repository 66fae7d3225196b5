package connection

import (
	"net"
	"time"

	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/identity"
)

// Direction reports which side opened the connection.
type Direction int

const (
	// Inbound connections arrived through the listener.
	Inbound Direction = iota

	// Outbound connections were dialed locally.
	Outbound
)

// String returns a human-readable direction.
func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Event is a connection state change, delivered to the application
// through the endpoint's event channel.
type Event struct {
	// Peer is the remote identity fingerprint.
	Peer identity.Fingerprint

	// Addr is the remote network address at the time of the event.
	Addr net.Addr

	// State is the state entered.
	State State

	// Reason is set when State is StateFailed.
	Reason FailReason

	// Error carries the underlying fault, if any.
	Error error

	// Timestamp records when the transition happened.
	Timestamp time.Time
}

// IsError returns true if this event represents an error condition.
func (e Event) IsError() bool {
	return e.Error != nil || e.State == StateFailed
}

// Message is one application payload received from a peer.
type Message struct {
	// Peer is the sender's identity fingerprint.
	Peer identity.Fingerprint

	// Channel is the logical channel the message arrived on.
	Channel channel.Tag

	// Payload is the message body. The slice is owned by the receiver.
	Payload []byte
}

// Logger is the subset of the endpoint logger the connection layer
// needs. Messages use structured key-value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
