// Package testing provides test doubles for applications built on
// Wireberry. The MockEndpoint mirrors the Endpoint API surface without
// opening sockets, so application logic can be tested hermetically.
package testing

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry"
	"github.com/blockberries/wireberry/pkg/addressbook"
	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/identity"
)

// Re-exported sentinels so tests can match errors without importing
// the packages that define them.
var (
	ErrPeerNotFound = addressbook.ErrPeerNotFound
	ErrNotConnected = wireberry.ErrNotConnected
)

// SentMessage records one Send call made against the mock.
type SentMessage struct {
	Peer    identity.Fingerprint
	Channel channel.Tag
	Payload []byte
}

type mockConn struct {
	outbound bool
}

// MockEndpoint is an in-memory stand-in for wireberry.Endpoint.
// It records sent messages and lets tests inject connections, messages,
// and failures.
//
// MockEndpoint is safe for concurrent use.
type MockEndpoint struct {
	mu sync.Mutex

	fingerprint identity.Fingerprint
	publicKey   ed25519.PublicKey

	started   bool
	peers     map[identity.Fingerprint]*addressbook.PeerEntry
	conns     map[identity.Fingerprint]*mockConn
	sent      []SentMessage
	dialErr   error
	sendErr   error

	events   chan wireberry.Event
	messages chan wireberry.Message
}

// NewMockEndpoint creates a mock with a freshly generated identity.
func NewMockEndpoint() *MockEndpoint {
	id, err := identity.Generate()
	if err != nil {
		panic("testing: generate mock identity: " + err.Error())
	}
	return NewMockEndpointWithIdentity(id.Fingerprint(), id.PublicKey())
}

// NewMockEndpointWithIdentity creates a mock claiming the given identity.
func NewMockEndpointWithIdentity(fp identity.Fingerprint, pub ed25519.PublicKey) *MockEndpoint {
	return &MockEndpoint{
		fingerprint: fp,
		publicKey:   pub,
		peers:       make(map[identity.Fingerprint]*addressbook.PeerEntry),
		conns:       make(map[identity.Fingerprint]*mockConn),
		events:      make(chan wireberry.Event, 100),
		messages:    make(chan wireberry.Message, 1000),
	}
}

// Fingerprint returns the mock's identity fingerprint.
func (m *MockEndpoint) Fingerprint() identity.Fingerprint { return m.fingerprint }

// PublicKey returns the mock's public key.
func (m *MockEndpoint) PublicKey() ed25519.PublicKey { return m.publicKey }

// Start marks the mock as started. It never fails.
func (m *MockEndpoint) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// Stop marks the mock as stopped and drops all connections.
func (m *MockEndpoint) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.conns = make(map[identity.Fingerprint]*mockConn)
	return nil
}

// Started reports whether Start has been called without a matching Stop.
func (m *MockEndpoint) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// AddPeer records a peer entry, mirroring the address book API.
func (m *MockEndpoint) AddPeer(fp identity.Fingerprint, addrs []multiaddr.Multiaddr, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.peers[fp] = &addressbook.PeerEntry{
		Fingerprint: fp,
		Multiaddrs:  append([]multiaddr.Multiaddr(nil), addrs...),
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

// GetPeer returns a recorded peer entry.
func (m *MockEndpoint) GetPeer(fp identity.Fingerprint) (*addressbook.PeerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.peers[fp]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return entry.Clone(), nil
}

// RemovePeer deletes a recorded peer entry.
func (m *MockEndpoint) RemovePeer(fp identity.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.peers[fp]; !ok {
		return ErrPeerNotFound
	}
	delete(m.peers, fp)
	return nil
}

// ListPeers returns all recorded peer entries.
func (m *MockEndpoint) ListPeers() []*addressbook.PeerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*addressbook.PeerEntry, 0, len(m.peers))
	for _, entry := range m.peers {
		out = append(out, entry.Clone())
	}
	return out
}

// Dial records an outbound connection to the expected peer. The address
// is ignored; no network activity happens. If a dial error was injected
// with SetDialError, it is returned instead.
func (m *MockEndpoint) Dial(ctx context.Context, addr multiaddr.Multiaddr, expected identity.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dialErr != nil {
		return m.dialErr
	}
	m.conns[expected] = &mockConn{outbound: true}
	m.emitLocked(wireberry.Event{
		Peer:      expected,
		State:     wireberry.StateEstablished,
		Timestamp: time.Now(),
	})
	return nil
}

// Disconnect drops the connection to the peer, if any.
func (m *MockEndpoint) Disconnect(fp identity.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[fp]; !ok {
		return ErrNotConnected
	}
	delete(m.conns, fp)
	m.emitLocked(wireberry.Event{
		Peer:      fp,
		State:     wireberry.StateClosed,
		Timestamp: time.Now(),
	})
	return nil
}

// ConnectionState reports the connection state for the peer.
func (m *MockEndpoint) ConnectionState(fp identity.Fingerprint) wireberry.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[fp]; ok {
		return wireberry.StateEstablished
	}
	return wireberry.StateClosed
}

// IsConnected reports whether a connection to the peer exists.
func (m *MockEndpoint) IsConnected(fp identity.Fingerprint) bool {
	return m.ConnectionState(fp) == wireberry.StateEstablished
}

// IsOutbound reports whether the connection to the peer was dialed
// locally.
func (m *MockEndpoint) IsOutbound(fp identity.Fingerprint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[fp]
	if !ok {
		return false, ErrNotConnected
	}
	return conn.outbound, nil
}

// ConnectedPeers returns the fingerprints of all connected peers.
func (m *MockEndpoint) ConnectedPeers() []identity.Fingerprint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]identity.Fingerprint, 0, len(m.conns))
	for fp := range m.conns {
		out = append(out, fp)
	}
	return out
}

// Send records the message for later inspection. If a send error was
// injected with SetSendError, it is returned instead.
func (m *MockEndpoint) Send(ctx context.Context, fp identity.Fingerprint, tag channel.Tag, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	if _, ok := m.conns[fp]; !ok {
		return ErrNotConnected
	}
	m.sent = append(m.sent, SentMessage{
		Peer:    fp,
		Channel: tag,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// Events returns the mock's event channel.
func (m *MockEndpoint) Events() <-chan wireberry.Event { return m.events }

// Messages returns the mock's message channel.
func (m *MockEndpoint) Messages() <-chan wireberry.Message { return m.messages }

// SimulateConnect injects an inbound connection from the peer and emits
// the established event.
func (m *MockEndpoint) SimulateConnect(fp identity.Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conns[fp] = &mockConn{outbound: false}
	m.emitLocked(wireberry.Event{
		Peer:      fp,
		State:     wireberry.StateEstablished,
		Timestamp: time.Now(),
	})
}

// SimulateDisconnect drops the peer's connection and emits the closed
// event.
func (m *MockEndpoint) SimulateDisconnect(fp identity.Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conns, fp)
	m.emitLocked(wireberry.Event{
		Peer:      fp,
		State:     wireberry.StateClosed,
		Timestamp: time.Now(),
	})
}

// SimulateMessage injects an inbound message from the peer.
func (m *MockEndpoint) SimulateMessage(fp identity.Fingerprint, tag channel.Tag, payload []byte) {
	m.messages <- wireberry.Message{
		Peer:    fp,
		Channel: tag,
		Payload: append([]byte(nil), payload...),
	}
}

// SetDialError makes subsequent Dial calls fail with err. Pass nil to
// clear.
func (m *MockEndpoint) SetDialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// SetSendError makes subsequent Send calls fail with err. Pass nil to
// clear.
func (m *MockEndpoint) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SentMessages returns a copy of all recorded sends.
func (m *MockEndpoint) SentMessages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SentOn returns all recorded sends to the peer on the given channel.
func (m *MockEndpoint) SentOn(fp identity.Fingerprint, tag channel.Tag) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SentMessage
	for _, msg := range m.sent {
		if msg.Peer == fp && msg.Channel == tag {
			out = append(out, msg)
		}
	}
	return out
}

// NothingSentOn reports whether no sends were recorded for the peer on
// the given channel.
func (m *MockEndpoint) NothingSentOn(fp identity.Fingerprint, tag channel.Tag) bool {
	return len(m.SentOn(fp, tag)) == 0
}

// ClearSentMessages discards all recorded sends.
func (m *MockEndpoint) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Reset restores the mock to its initial state, keeping its identity.
func (m *MockEndpoint) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.peers = make(map[identity.Fingerprint]*addressbook.PeerEntry)
	m.conns = make(map[identity.Fingerprint]*mockConn)
	m.sent = nil
	m.dialErr = nil
	m.sendErr = nil
	m.started = false

	// Drain buffered events and messages.
	for {
		select {
		case <-m.events:
		case <-m.messages:
		default:
			return
		}
	}
}

// emitLocked delivers an event without blocking; events overflow
// silently like the real endpoint's drop behavior.
func (m *MockEndpoint) emitLocked(ev wireberry.Event) {
	select {
	case m.events <- ev:
	default:
	}
}
