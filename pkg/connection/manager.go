package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/blockberries/wireberry/internal/eventdispatch"
	"github.com/blockberries/wireberry/pkg/banlist"
	"github.com/blockberries/wireberry/pkg/identity"
	"github.com/blockberries/wireberry/pkg/transport"
)

// ErrManagerClosed is returned by operations on a closed manager.
var ErrManagerClosed = errors.New("connection: manager closed")

// ManagerConfig carries the manager's limits and the per-connection
// template.
type ManagerConfig struct {
	// Conn is the template applied to every connection.
	Conn Config

	// ResumeHandshakeTimeout replaces Conn.HandshakeTimeout when a
	// cached resumption ticket exists for the dialed peer. Zero
	// defaults to half the full budget.
	ResumeHandshakeTimeout time.Duration

	// MaxPerSource caps concurrent connections from one source IP.
	// Zero means 8.
	MaxPerSource int

	// EventBuffer sizes the lifecycle event channel.
	EventBuffer int

	// MessageBuffer sizes the inbound message channel.
	MessageBuffer int
}

func (c *ManagerConfig) applyDefaults() {
	c.Conn.applyDefaults()
	if c.ResumeHandshakeTimeout <= 0 {
		c.ResumeHandshakeTimeout = c.Conn.HandshakeTimeout / 2
	}
	if c.MaxPerSource <= 0 {
		c.MaxPerSource = 8
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	if c.MessageBuffer <= 0 {
		c.MessageBuffer = 1024
	}
}

// Manager owns every live connection of an endpoint: the accept loop,
// outbound dials, the one-connection-per-peer rule, and the fan-in of
// events and messages.
type Manager struct {
	engine *transport.Engine
	cfg    ManagerConfig
	log    Logger

	disp     *eventdispatch.Dispatcher[Event]
	messages chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[identity.Fingerprint]*Conn
	closed bool
}

// NewManager creates a manager over the given engine.
func NewManager(engine *transport.Engine, cfg ManagerConfig) *Manager {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:   engine,
		cfg:      cfg,
		log:      cfg.Conn.Logger,
		disp:     eventdispatch.NewDispatcher[Event](cfg.EventBuffer),
		messages: make(chan Message, cfg.MessageBuffer),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[identity.Fingerprint]*Conn),
	}
}

// Start launches the accept loop. It is a no-op for dial-only
// endpoints that never listen.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.acceptLoop()
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		qc, err := m.engine.Accept(m.ctx)
		if err != nil {
			if errors.Is(err, transport.ErrNotListening) ||
				errors.Is(err, transport.ErrEngineClosed) ||
				errors.Is(err, context.Canceled) {
				return
			}
			m.log.Warn("accept failed", "error", err)
			return
		}
		m.handleInbound(qc)
	}
}

func (m *Manager) handleInbound(qc *quic.Conn) {
	peer, err := identity.PeerFingerprint(qc.ConnectionState().TLS)
	if err != nil {
		m.log.Warn("inbound connection without identity", "addr", qc.RemoteAddr().String(), "error", err)
		qc.CloseWithError(closeCodeProtocol, "no identity")
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		qc.CloseWithError(closeCodeNone, "shutting down")
		return
	}

	if n := m.countFromSourceLocked(qc.RemoteAddr()); n >= m.cfg.MaxPerSource {
		m.mu.Unlock()
		m.log.Warn("per-source connection limit reached",
			"addr", qc.RemoteAddr().String(), "limit", m.cfg.MaxPerSource)
		qc.CloseWithError(closeCodeLimit, "connection limit")
		return
	}

	// A second connection from an established peer is a resumption:
	// the new one wins, the old one is superseded.
	old := m.conns[peer]
	m.mu.Unlock()
	if old != nil {
		m.log.Info("superseding connection", "peer", peer.Short())
		old.supersede()
	}

	conn, err := newConn(qc, Inbound, peer, m.cfg.Conn, m.disp.Emit, m.deliverMessage)
	if err != nil {
		m.log.Error("inbound connection setup failed", "peer", peer.Short(), "error", err)
		qc.CloseWithError(closeCodeProtocol, "setup failed")
		return
	}
	m.register(peer, conn)
}

// Dial connects to addr, requiring the listener to present the
// expected fingerprint, and blocks until the connection is established
// or fails. A cached resumption ticket shortens the handshake budget.
func (m *Manager) Dial(ctx context.Context, addr ma.Multiaddr, expected identity.Fingerprint) (*Conn, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if existing, ok := m.conns[expected]; ok && !existing.State().IsTerminal() {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	cfg := m.cfg.Conn
	if m.engine.HasSession(expected) {
		cfg.HandshakeTimeout = m.cfg.ResumeHandshakeTimeout
	}

	qc, err := m.engine.Dial(ctx, addr, expected)
	if err != nil {
		if errors.Is(err, identity.ErrUntrustedPeer) {
			m.disp.Emit(Event{
				Peer:      expected,
				State:     StateFailed,
				Reason:    ReasonUntrustedPeer,
				Error:     err,
				Timestamp: cfg.Clock.Now(),
			})
		}
		return nil, err
	}

	conn, err := newConn(qc, Outbound, expected, cfg, m.disp.Emit, m.deliverMessage)
	if err != nil {
		qc.CloseWithError(closeCodeProtocol, "setup failed")
		return nil, err
	}
	m.register(expected, conn)

	select {
	case <-conn.Established():
		return conn, nil
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			return nil, fmt.Errorf("handshake with %s: %w", expected.Short(), err)
		}
		return nil, fmt.Errorf("handshake with %s: connection closed", expected.Short())
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

// register records the connection and arranges its removal when it
// reaches a terminal state.
func (m *Manager) register(peer identity.Fingerprint, conn *Conn) {
	m.mu.Lock()
	m.conns[peer] = conn
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-conn.Done()
		m.mu.Lock()
		if m.conns[peer] == conn {
			delete(m.conns, peer)
		}
		m.mu.Unlock()
	}()
}

// deliverMessage hands a message to the application. Delivery blocks
// when the buffer is full, which backpressures the sender's reliable
// streams; connection or manager shutdown releases a blocked delivery.
func (m *Manager) deliverMessage(ctx context.Context, msg Message) {
	select {
	case m.messages <- msg:
	case <-ctx.Done():
	case <-m.ctx.Done():
	}
}

func (m *Manager) countFromSourceLocked(addr net.Addr) int {
	source := banlist.AddrFromNetAddr(addr)
	if !source.IsValid() {
		return 0
	}
	n := 0
	for _, c := range m.conns {
		if banlist.AddrFromNetAddr(c.RemoteAddr()) == source {
			n++
		}
	}
	return n
}

// Get returns the live connection to peer, if any.
func (m *Manager) Get(peer identity.Fingerprint) (*Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[peer]
	return c, ok
}

// Conns returns a snapshot of all live connections.
func (m *Manager) Conns() []*Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

// Len reports the number of live connections.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Events returns the lifecycle event channel.
func (m *Manager) Events() <-chan Event {
	return m.disp.Events()
}

// DroppedEvents reports lifecycle events discarded because the
// consumer fell behind.
func (m *Manager) DroppedEvents() uint64 {
	return m.disp.Dropped()
}

// Messages returns the inbound message channel.
func (m *Manager) Messages() <-chan Message {
	return m.messages
}

// Close drains nothing: every connection is closed immediately and the
// event channel is closed once all connection goroutines finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	m.cancel()
	m.wg.Wait()
	m.disp.Close()
	return nil
}
