// Package transport owns the socket: one UDP port shared by the
// listener and every outbound dial, secured by TLS over QUIC with
// fingerprint-pinned self-signed certificates and filtered at the
// packet level by the ban list.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/blockberries/wireberry/pkg/banlist"
	"github.com/blockberries/wireberry/pkg/identity"
)

// ErrEngineClosed is returned by operations on a closed engine.
var ErrEngineClosed = errors.New("transport: engine closed")

// ErrNotListening is returned by Accept when the engine never bound a
// listener.
var ErrNotListening = errors.New("transport: engine is not listening")

// Config carries the engine's socket and security parameters.
type Config struct {
	// Identity signs the TLS certificate presented to peers. Required.
	Identity *identity.Identity

	// Filter drops traffic to and from banned addresses at the socket.
	// Required; an empty filter admits everyone.
	Filter *banlist.Filter

	// SessionCache, if non-nil, enables abbreviated resumption
	// handshakes on outbound dials.
	SessionCache *SessionCache

	// MaxIdleTimeout is how long a connection survives without traffic
	// before the peer is presumed gone.
	MaxIdleTimeout time.Duration

	// KeepAlivePeriod is the interval between transport-level keepalive
	// packets on otherwise idle connections.
	KeepAlivePeriod time.Duration

	// HandshakeTimeout bounds the cryptographic handshake on dials.
	HandshakeTimeout time.Duration

	// MaxIncomingStreams caps concurrent peer-opened streams per
	// connection. Zero selects a default matching the channel budget.
	MaxIncomingStreams int64

	// OnFilteredPacket, if non-nil, observes each inbound packet the
	// ban filter discards.
	OnFilteredPacket func(addr net.Addr)
}

const (
	defaultMaxIdleTimeout     = 30 * time.Second
	defaultKeepAlivePeriod    = 10 * time.Second
	defaultHandshakeTimeout   = 10 * time.Second
	defaultMaxIncomingStreams = 256
)

// Engine binds the shared UDP socket and terminates QUIC on it. The
// same socket serves the listener and all outbound dials, so a peer
// behind NAT observes one stable endpoint.
type Engine struct {
	cfg      Config
	quicConf *quic.Config

	mu       sync.Mutex
	udpConn  *net.UDPConn
	packet   *filteredPacketConn
	quicT    *quic.Transport
	listener *quic.Listener
	closed   bool
}

// NewEngine validates cfg and returns an unbound engine. The socket is
// created lazily by Listen or the first Dial.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Identity == nil {
		return nil, errors.New("transport: config requires an identity")
	}
	if cfg.Filter == nil {
		return nil, errors.New("transport: config requires a ban filter")
	}
	if cfg.MaxIdleTimeout <= 0 {
		cfg.MaxIdleTimeout = defaultMaxIdleTimeout
	}
	if cfg.KeepAlivePeriod <= 0 {
		cfg.KeepAlivePeriod = defaultKeepAlivePeriod
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.MaxIncomingStreams <= 0 {
		cfg.MaxIncomingStreams = defaultMaxIncomingStreams
	}

	return &Engine{
		cfg: cfg,
		quicConf: &quic.Config{
			MaxIdleTimeout:        cfg.MaxIdleTimeout,
			KeepAlivePeriod:       cfg.KeepAlivePeriod,
			HandshakeIdleTimeout:  cfg.HandshakeTimeout,
			MaxIncomingStreams:    cfg.MaxIncomingStreams,
			MaxIncomingUniStreams: cfg.MaxIncomingStreams,
			EnableDatagrams:       true,
			Allow0RTT:             true,
		},
	}, nil
}

// bind creates the shared socket and QUIC transport if they do not
// exist yet. Caller holds e.mu.
func (e *Engine) bind(laddr *net.UDPAddr) error {
	if e.udpConn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("bind udp socket: %w", err)
	}
	e.udpConn = conn
	e.packet = newFilteredPacketConn(conn, e.cfg.Filter, e.cfg.OnFilteredPacket)
	e.quicT = &quic.Transport{Conn: e.packet}
	return nil
}

// Listen binds the socket to addr and starts accepting handshakes.
// Listen may be called once; subsequent dials share the bound port.
func (e *Engine) Listen(addr ma.Multiaddr) error {
	udpAddr, err := UDPAddrFromMultiaddr(addr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.listener != nil {
		return errors.New("transport: engine is already listening")
	}
	if err := e.bind(udpAddr); err != nil {
		return err
	}

	ln, err := e.quicT.Listen(e.cfg.Identity.ServerTLSConfig(), e.quicConf)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	e.listener = ln
	return nil
}

// Accept blocks until an inbound connection completes its
// cryptographic handshake. The caller still owes the application
// handshake before the connection is usable.
func (e *Engine) Accept(ctx context.Context) (*quic.Conn, error) {
	e.mu.Lock()
	ln := e.listener
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}
	if ln == nil {
		return nil, ErrNotListening
	}
	return ln.Accept(ctx)
}

// Dial connects to addr and pins the handshake to expected: the
// connection fails before any application data if the peer's
// certificate fingerprint differs. The dial shares the listening
// socket when one is bound, or binds an ephemeral port otherwise.
func (e *Engine) Dial(ctx context.Context, addr ma.Multiaddr, expected identity.Fingerprint) (*quic.Conn, error) {
	udpAddr, err := UDPAddrFromMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	if !e.cfg.Filter.AdmitsNetAddr(udpAddr) {
		return nil, fmt.Errorf("transport: %s is banned", udpAddr)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	if err := e.bind(&net.UDPAddr{Port: 0}); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	qt := e.quicT
	e.mu.Unlock()

	// A typed nil must not reach crypto/tls as a non-nil interface.
	var cache tls.ClientSessionCache
	if e.cfg.SessionCache != nil {
		cache = e.cfg.SessionCache
	}
	tlsConf := e.cfg.Identity.ClientTLSConfig(expected, cache)

	conn, err := qt.Dial(ctx, udpAddr, tlsConf, e.quicConf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", udpAddr, err)
	}
	return conn, nil
}

// LocalAddr returns the bound UDP address, or nil before the socket
// exists.
func (e *Engine) LocalAddr() *net.UDPAddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.udpConn == nil {
		return nil
	}
	return e.udpConn.LocalAddr().(*net.UDPAddr)
}

// Addrs returns the engine's listen addresses as multiaddrs.
func (e *Engine) Addrs() []ma.Multiaddr {
	addr := e.LocalAddr()
	if addr == nil {
		return nil
	}
	m, err := MultiaddrFromUDPAddr(addr)
	if err != nil {
		return nil
	}
	return []ma.Multiaddr{m}
}

// HasSession reports whether a resumption ticket is cached for the
// given peer fingerprint, letting callers budget for an abbreviated
// handshake.
func (e *Engine) HasSession(fingerprint identity.Fingerprint) bool {
	return e.cfg.SessionCache != nil && e.cfg.SessionCache.Has(fingerprint.String())
}

// FilteredPackets reports how many packets the ban filter has dropped
// at the socket.
func (e *Engine) FilteredPackets() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.packet == nil {
		return 0
	}
	return e.packet.Dropped()
}

// Close tears down the listener, the QUIC transport, and the socket.
// Established connections are closed by the transport shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.listener != nil {
		e.listener.Close()
		e.listener = nil
	}
	if e.quicT != nil {
		errs = append(errs, e.quicT.Close())
		e.quicT = nil
	}
	if e.udpConn != nil {
		errs = append(errs, e.udpConn.Close())
		e.udpConn = nil
	}
	return errors.Join(errs...)
}
