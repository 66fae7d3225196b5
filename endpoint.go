package wireberry

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry/internal/pool"
	"github.com/blockberries/wireberry/pkg/addressbook"
	"github.com/blockberries/wireberry/pkg/banlist"
	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/codec"
	"github.com/blockberries/wireberry/pkg/connection"
	"github.com/blockberries/wireberry/pkg/identity"
	"github.com/blockberries/wireberry/pkg/transport"
)

// Endpoint is the main entry point for Wireberry transport sessions.
// It aggregates all components and provides a unified public API.
//
// All public methods are thread-safe.
type Endpoint struct {
	config *Config

	// Core components
	identity    *identity.Identity
	filter      *banlist.Filter
	engine      *transport.Engine
	codec       *codec.Codec
	connections *connection.Manager
	addressBook *addressbook.Book

	// Public channels, fed by the pump goroutines
	events   chan Event
	messages chan Message

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	startMu sync.Mutex
}

// New creates a new Wireberry endpoint with the given configuration.
// The endpoint does not bind its socket until Start() is called.
func New(cfg *Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.applyDefaults()

	id, err := identity.FromKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	filter := banlist.NewFilter()
	if len(cfg.BanRules) > 0 || cfg.AllowListMode {
		filter.ReplaceSnapshot(banlist.NewSnapshot(cfg.BanRules, cfg.AllowListMode))
	}

	var book *addressbook.Book
	if cfg.AddressBookPath != "" {
		book, err = addressbook.New(cfg.AddressBookPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create address book: %w", err)
		}
	}

	metrics := cfg.Metrics
	engine, err := transport.NewEngine(transport.Config{
		Identity:         id,
		Filter:           filter,
		SessionCache:     transport.NewSessionCache(cfg.SessionCacheSize, cfg.SessionTTL),
		MaxIdleTimeout:   cfg.IdleTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		OnFilteredPacket: func(net.Addr) { metrics.PacketFiltered() },
	})
	if err != nil {
		if book != nil {
			book.Close()
		}
		return nil, fmt.Errorf("failed to create transport engine: %w", err)
	}

	wireCodec, err := codec.New(pool.Global(),
		codec.WithMaxPayloadSize(cfg.MaxPayloadSize),
		codec.WithMaxDecompressedSize(cfg.MaxDecompressedSize),
	)
	if err != nil {
		engine.Close()
		if book != nil {
			book.Close()
		}
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	manager := connection.NewManager(engine, connection.ManagerConfig{
		Conn: connection.Config{
			Channels:            cfg.Channels,
			Codec:               wireCodec,
			Pool:                pool.Global(),
			Logger:              cfg.Logger,
			HandshakeTimeout:    cfg.HandshakeTimeout,
			KeepAliveInterval:   cfg.KeepAliveInterval,
			IdleTimeout:         cfg.IdleTimeout,
			CompressionPriority: cfg.CompressionPriority,
			Migration:           cfg.Migration,
			OutboundBytes:       cfg.OutboundBytes,
		},
		ResumeHandshakeTimeout: cfg.ResumeHandshakeTimeout,
		MaxPerSource:           cfg.MaxPerSource,
		EventBuffer:            cfg.EventBufferSize,
		MessageBuffer:          cfg.MessageBufferSize,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Endpoint{
		config:      cfg,
		identity:    id,
		filter:      filter,
		engine:      engine,
		codec:       wireCodec,
		connections: manager,
		addressBook: book,
		events:      make(chan Event, cfg.EventBufferSize),
		messages:    make(chan Message, cfg.MessageBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start binds the listen addresses and begins accepting connections.
// This must be called before the endpoint can dial peers or receive
// connections.
func (e *Endpoint) Start() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.started {
		return ErrEndpointAlreadyStarted
	}

	for _, addr := range e.config.ListenAddrs {
		if err := e.engine.Listen(addr); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}
	if len(e.config.ListenAddrs) > 0 {
		e.connections.Start()
	}

	e.wg.Add(2)
	go e.pumpEvents()
	go e.pumpMessages()

	e.started = true
	e.config.Logger.Info("endpoint started",
		"fingerprint", e.identity.Fingerprint().Short(),
		"listen_addrs", len(e.config.ListenAddrs))

	return nil
}

// Stop shuts down the endpoint and releases all resources.
// It closes all connections, stops all goroutines, and unbinds the socket.
func (e *Endpoint) Stop() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if !e.started {
		return ErrEndpointNotStarted
	}

	// Shut down in reverse order of initialization
	if err := e.connections.Close(); err != nil {
		e.config.Logger.Warn("connection manager close", "error", err)
	}
	if err := e.engine.Close(); err != nil {
		e.config.Logger.Warn("transport engine close", "error", err)
	}

	e.cancel()
	e.wg.Wait()
	close(e.events)
	close(e.messages)

	if e.addressBook != nil {
		if err := e.addressBook.Close(); err != nil {
			return fmt.Errorf("failed to close address book: %w", err)
		}
	}

	e.started = false
	e.config.Logger.Info("endpoint stopped")

	return nil
}

// pumpEvents forwards connection lifecycle events to the public
// channel, instrumenting metrics along the way. Events are dropped
// rather than blocking when the application falls behind.
func (e *Endpoint) pumpEvents() {
	defer e.wg.Done()

	// direction per live peer, maintained for close accounting
	directions := make(map[identity.Fingerprint]string)

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.connections.Events():
			if !ok {
				return
			}
			e.observeEvent(ev, directions)
			select {
			case e.events <- ev:
			default:
				e.config.Metrics.EventDropped()
				e.config.Logger.Warn("event dropped, buffer full",
					"peer", ev.Peer.Short(), "state", ev.State.String())
			}
		}
	}
}

func (e *Endpoint) observeEvent(ev Event, directions map[identity.Fingerprint]string) {
	m := e.config.Metrics
	m.EventEmitted(ev.State.String())

	switch ev.State {
	case StateEstablished:
		dir := "inbound"
		if conn, ok := e.connections.Get(ev.Peer); ok {
			dir = conn.Direction().String()
		}
		directions[ev.Peer] = dir
		m.ConnectionOpened(dir)
		if e.addressBook != nil {
			var addr multiaddr.Multiaddr
			if udp, ok := ev.Addr.(*net.UDPAddr); ok {
				addr, _ = transport.MultiaddrFromUDPAddr(udp)
			}
			e.addressBook.MarkSeen(ev.Peer, addr)
		}
	case StateClosed, StateFailed:
		if dir, ok := directions[ev.Peer]; ok {
			m.ConnectionClosed(dir)
			delete(directions, ev.Peer)
		}
		if ev.State == StateFailed && ev.Reason == ReasonHandshakeTimeout {
			m.HandshakeResult("timeout")
		}
	}
}

// pumpMessages forwards inbound messages to the public channel. Unlike
// events, messages block: backpressure propagates to the sender.
func (e *Endpoint) pumpMessages() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-e.connections.Messages():
			if !ok {
				return
			}
			e.config.Metrics.MessageReceived(channelLabel(msg.Channel), len(msg.Payload))
			select {
			case e.messages <- msg:
			case <-e.ctx.Done():
				return
			}
		}
	}
}

func channelLabel(tag channel.Tag) string {
	return strconv.Itoa(int(tag))
}

// Fingerprint returns the local identity fingerprint.
func (e *Endpoint) Fingerprint() identity.Fingerprint {
	return e.identity.Fingerprint()
}

// PublicKey returns the local Ed25519 public key.
func (e *Endpoint) PublicKey() ed25519.PublicKey {
	return e.identity.PublicKey()
}

// Addrs returns the multiaddresses the endpoint is listening on, with
// wildcard ports resolved to the bound port.
func (e *Endpoint) Addrs() []multiaddr.Multiaddr {
	return e.engine.Addrs()
}

// Dial establishes a connection to a peer at the given address,
// pinned to the expected identity fingerprint. It blocks until the
// connection is established, the context expires, or the attempt
// fails. Dialing an already-connected peer returns without a new
// connection.
func (e *Endpoint) Dial(ctx context.Context, addr multiaddr.Multiaddr, expected identity.Fingerprint) error {
	e.startMu.Lock()
	if !e.started {
		e.startMu.Unlock()
		return ErrEndpointNotStarted
	}
	e.startMu.Unlock()

	m := e.config.Metrics
	m.SessionResumed(e.engine.HasSession(expected))

	start := time.Now()
	_, err := e.connections.Dial(ctx, addr, expected)
	if err != nil {
		m.ConnectionAttempt("failure")
		if errors.Is(err, context.DeadlineExceeded) {
			m.HandshakeResult("timeout")
		} else {
			m.HandshakeResult("failure")
		}
		if errors.Is(err, identity.ErrUntrustedPeer) {
			return NewPeerError(ErrCodeUntrustedPeer, "peer identity mismatch", expected)
		}
		return NewErrorWithCause(ErrCodeConnectionFailed, "dial failed", err)
	}

	m.ConnectionAttempt("success")
	m.HandshakeResult("success")
	m.HandshakeDuration(time.Since(start).Seconds())
	return nil
}

// DialKnown dials a peer using the addresses recorded in the address
// book, trying each in order until one succeeds.
func (e *Endpoint) DialKnown(ctx context.Context, fp identity.Fingerprint) error {
	if e.addressBook == nil {
		return NewError(ErrCodeInvalidConfig, "no address book configured")
	}
	entry, err := e.addressBook.GetPeer(fp)
	if err != nil {
		return err
	}
	if len(entry.Multiaddrs) == 0 {
		return NewPeerError(ErrCodeConnectionFailed, "no known addresses for peer", fp)
	}

	var lastErr error
	for _, addr := range entry.Multiaddrs {
		if err := e.Dial(ctx, addr, fp); err != nil {
			lastErr = err
			if IsPermanent(err) || ctx.Err() != nil {
				return err
			}
			continue
		}
		return nil
	}
	return lastErr
}

// Send sends a payload to a peer over the given channel. The call
// blocks while the channel's backpressure budget is exhausted.
func (e *Endpoint) Send(ctx context.Context, peer identity.Fingerprint, tag channel.Tag, payload []byte) error {
	conn, ok := e.connections.Get(peer)
	if !ok {
		return ErrNotConnected
	}

	if err := conn.Send(ctx, tag, payload); err != nil {
		switch {
		case errors.Is(err, channel.ErrUnknownChannel):
			return NewChannelError(ErrCodeUnknownChannel, "channel not defined", peer, uint8(tag))
		case errors.Is(err, codec.ErrPayloadTooLarge):
			return NewChannelError(ErrCodePayloadTooLarge, "payload exceeds maximum size", peer, uint8(tag))
		case errors.Is(err, connection.ErrDraining):
			return ErrConnectionDraining
		case errors.Is(err, connection.ErrClosed):
			return ErrConnectionClosed
		}
		return err
	}

	e.config.Metrics.MessageSent(channelLabel(tag), len(payload))
	return nil
}

// Disconnect closes the connection to a peer immediately, without
// waiting for queued data to flush. Use Drain for a graceful shutdown.
func (e *Endpoint) Disconnect(peer identity.Fingerprint) error {
	conn, ok := e.connections.Get(peer)
	if !ok {
		return ErrNotConnected
	}
	return conn.Close()
}

// Drain gracefully shuts down the connection to a peer: new sends are
// rejected while queued reliable data flushes, then the connection
// closes. The context bounds how long the flush may take.
func (e *Endpoint) Drain(ctx context.Context, peer identity.Fingerprint) error {
	conn, ok := e.connections.Get(peer)
	if !ok {
		return ErrNotConnected
	}
	return conn.Drain(ctx)
}

// ConnectionState returns the lifecycle state of the connection to a
// peer, or StateClosed if no connection exists.
func (e *Endpoint) ConnectionState(peer identity.Fingerprint) State {
	conn, ok := e.connections.Get(peer)
	if !ok {
		return StateClosed
	}
	return conn.State()
}

// ConnectionStats returns a statistics snapshot for the connection to
// a peer. The second return value is false if no connection exists.
func (e *Endpoint) ConnectionStats(peer identity.Fingerprint) (connection.Stats, bool) {
	conn, ok := e.connections.Get(peer)
	if !ok {
		return connection.Stats{}, false
	}
	return conn.Stats(), true
}

// Peers returns the fingerprints of all currently connected peers.
func (e *Endpoint) Peers() []identity.Fingerprint {
	conns := e.connections.Conns()
	peers := make([]identity.Fingerprint, 0, len(conns))
	for _, c := range conns {
		peers = append(peers, c.Peer())
	}
	return peers
}

// ReplaceBanRules atomically replaces the address filter rules. New
// packets are judged against the new snapshot immediately; existing
// connections from now-banned addresses are disconnected.
func (e *Endpoint) ReplaceBanRules(rules []banlist.Rule, allowListMode bool) {
	e.filter.ReplaceSnapshot(banlist.NewSnapshot(rules, allowListMode))

	for _, conn := range e.connections.Conns() {
		addr := conn.RemoteAddr()
		if addr != nil && !e.filter.AdmitsNetAddr(addr) {
			e.config.Logger.Info("disconnecting banned peer",
				"peer", conn.Peer().Short(), "addr", addr.String())
			_ = conn.Close()
		}
	}
}

// BanRules returns the current filter snapshot.
func (e *Endpoint) BanRules() *banlist.Snapshot {
	return e.filter.Snapshot()
}

// AddPeer records a peer in the address book.
func (e *Endpoint) AddPeer(fp identity.Fingerprint, addrs []multiaddr.Multiaddr, metadata map[string]string) error {
	if e.addressBook == nil {
		return NewError(ErrCodeInvalidConfig, "no address book configured")
	}
	return e.addressBook.AddPeer(fp, addrs, metadata)
}

// RemovePeer removes a peer from the address book. This does not
// disconnect an active connection; use Disconnect for that.
func (e *Endpoint) RemovePeer(fp identity.Fingerprint) error {
	if e.addressBook == nil {
		return NewError(ErrCodeInvalidConfig, "no address book configured")
	}
	return e.addressBook.RemovePeer(fp)
}

// GetPeer retrieves a peer entry from the address book.
func (e *Endpoint) GetPeer(fp identity.Fingerprint) (*addressbook.PeerEntry, error) {
	if e.addressBook == nil {
		return nil, NewError(ErrCodeInvalidConfig, "no address book configured")
	}
	return e.addressBook.GetPeer(fp)
}

// ListPeers returns all peers recorded in the address book.
func (e *Endpoint) ListPeers() []*addressbook.PeerEntry {
	if e.addressBook == nil {
		return nil
	}
	return e.addressBook.ListPeers()
}

// Events returns the channel for receiving connection events.
// The application should read from this channel to observe state
// change notifications; events are dropped when it falls behind.
func (e *Endpoint) Events() <-chan Event {
	return e.events
}

// Messages returns the channel for receiving incoming messages.
// The application must read from this channel; inbound delivery
// blocks when it falls behind.
func (e *Endpoint) Messages() <-chan Message {
	return e.messages
}
