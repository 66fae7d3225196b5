package connection

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/quic-go/quic-go"

	"github.com/blockberries/wireberry/internal/pool"
	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/codec"
	"github.com/blockberries/wireberry/pkg/identity"
	"github.com/blockberries/wireberry/pkg/protocol"
)

// Errors returned by connection operations.
var (
	// ErrNotEstablished is returned for sends before the hello exchange
	// completes.
	ErrNotEstablished = errors.New("connection: not established")

	// ErrDraining is returned for new sends on a draining connection.
	ErrDraining = errors.New("connection: draining")

	// ErrClosed is returned for operations on a terminal connection.
	ErrClosed = errors.New("connection: closed")
)

// QUIC application close codes carried in CloseWithError.
const (
	closeCodeNone       quic.ApplicationErrorCode = 0
	closeCodeProtocol   quic.ApplicationErrorCode = 1
	closeCodeSuperseded quic.ApplicationErrorCode = 2
	closeCodeLimit      quic.ApplicationErrorCode = 3
)

// MigrationPolicy decides what happens when a peer's address changes
// mid-connection.
type MigrationPolicy int

const (
	// MigrationReject fails the connection on address change. The
	// default for listeners: a ban checked at handshake time must not
	// be escaped by moving to a fresh address.
	MigrationReject MigrationPolicy = iota

	// MigrationAllow follows the peer to its new address.
	MigrationAllow
)

// Config carries the parameters one connection needs. The manager
// fills it from the endpoint configuration.
type Config struct {
	Channels            []channel.Definition
	Codec               *codec.Codec
	Pool                *pool.BufferPool
	Clock               clock.Clock
	Logger              Logger
	HandshakeTimeout    time.Duration
	KeepAliveInterval   time.Duration
	IdleTimeout         time.Duration
	CompressionPriority []codec.Algorithm
	Migration           MigrationPolicy
	OutboundBytes       int64
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if len(c.CompressionPriority) == 0 {
		c.CompressionPriority = []codec.Algorithm{codec.Zstd, codec.S2}
	}
}

// rttAlpha is the EWMA weight for new round-trip samples.
const rttAlpha = 0.125

// Conn is one live peer connection. All exported methods are safe for
// concurrent use.
type Conn struct {
	qc   *quic.Conn
	dir  Direction
	peer identity.Fingerprint
	cfg  Config
	mux  *channel.Multiplexer

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	reason        FailReason
	err           error
	negotiated    codec.Algorithm
	helloReceived bool
	peerDraining  bool
	remoteAddr    net.Addr
	established   chan struct{}
	done          chan struct{}

	streamMu sync.Mutex
	streams  map[channel.Tag]*sendStream

	lastActivity atomicTime

	pingMu      sync.Mutex
	nextPingID  uint64
	outstanding map[uint64]time.Time
	smoothedRTT time.Duration
	pingsSent   uint64
	pongsRecv   uint64

	stats statsCounters

	establishedAt time.Time
	emit          func(Event)
	deliver       func(context.Context, Message)
	wg            sync.WaitGroup
}

type sendStream struct {
	mu sync.Mutex
	s  *quic.Stream
}

// statsCounters are the hot counters, updated without the state lock.
type statsCounters struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	msgsSent      atomic.Uint64
	msgsReceived  atomic.Uint64
}

// atomicTime stores a time.Time as nanoseconds for lock-free updates
// from the I/O loops.
type atomicTime struct {
	ns atomic.Int64
}

func (t *atomicTime) Store(v time.Time) { t.ns.Store(v.UnixNano()) }
func (t *atomicTime) Load() time.Time   { return time.Unix(0, t.ns.Load()) }

// newConn wraps an authenticated transport connection and starts the
// hello exchange. emit receives lifecycle events, deliver receives
// application messages; both are called from connection goroutines and
// must not block indefinitely.
func newConn(qc *quic.Conn, dir Direction, peer identity.Fingerprint, cfg Config, emit func(Event), deliver func(context.Context, Message)) (*Conn, error) {
	cfg.applyDefaults()

	defs := withControlChannel(cfg.Channels)
	mux, err := channel.NewMultiplexer(defs, cfg.OutboundBytes)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		qc:          qc,
		dir:         dir,
		peer:        peer,
		cfg:         cfg,
		mux:         mux,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateHandshaking,
		remoteAddr:  qc.RemoteAddr(),
		established: make(chan struct{}),
		done:        make(chan struct{}),
		streams:     make(map[channel.Tag]*sendStream),
		outstanding: make(map[uint64]time.Time),
		emit:        emit,
		deliver:     deliver,
	}
	c.lastActivity.Store(cfg.Clock.Now())

	c.wg.Add(3)
	go c.acceptStreams()
	go c.readDatagrams()
	go c.supervise()

	if err := c.sendHello(); err != nil {
		c.fail(ReasonTransport, fmt.Errorf("send hello: %w", err))
		return c, nil
	}
	return c, nil
}

// withControlChannel prepends the reserved control channel unless the
// caller already defined it.
func withControlChannel(defs []channel.Definition) []channel.Definition {
	for _, d := range defs {
		if d.Tag == channel.ControlTag {
			return defs
		}
	}
	out := make([]channel.Definition, 0, len(defs)+1)
	out = append(out, channel.Definition{Tag: channel.ControlTag, Class: channel.ReliableOrdered})
	return append(out, defs...)
}

// Peer returns the remote identity fingerprint.
func (c *Conn) Peer() identity.Fingerprint { return c.peer }

// Direction reports which side opened the connection.
func (c *Conn) Direction() Direction { return c.dir }

// RemoteAddr returns the peer's current network address.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailReason returns why the connection failed, or ReasonNone.
func (c *Conn) FailReason() FailReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Err returns the terminal error, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Established returns a channel closed once the hello exchange
// completes.
func (c *Conn) Established() <-chan struct{} { return c.established }

// Done returns a channel closed when the connection reaches a terminal
// state.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Negotiated returns the compression algorithm agreed in the hello
// exchange. Valid once Established.
func (c *Conn) Negotiated() codec.Algorithm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// Send queues payload on the given channel. Reliable channels block
// under backpressure until queue space frees or ctx is cancelled;
// unreliable channels never block. The payload is consumed before Send
// returns and may be reused by the caller.
func (c *Conn) Send(ctx context.Context, tag channel.Tag, payload []byte) error {
	if err := c.sendable(tag); err != nil {
		return err
	}

	seq, hasSeq, release, err := c.mux.AcquireSend(ctx, tag, int64(len(payload)))
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	algo := c.negotiated
	c.mu.Unlock()

	buf, err := c.cfg.Codec.Encode(uint8(tag), seq, hasSeq, payload, algo)
	if err != nil {
		return err
	}
	defer c.cfg.Codec.Release(buf)

	def, _ := c.mux.Definition(tag)
	if def.Class.Reliable() {
		err = c.writeStreamFrame(ctx, tag, *buf)
	} else {
		// The transport queues datagrams asynchronously; it gets an
		// owned copy so the pooled buffer can be released.
		err = c.qc.SendDatagram(append([]byte(nil), *buf...))
	}
	if err != nil {
		return fmt.Errorf("send on channel %d: %w", tag, err)
	}

	c.stats.bytesSent.Add(uint64(len(*buf)))
	c.stats.msgsSent.Add(1)
	c.touch()
	return nil
}

// sendable rejects sends the current state does not allow. The control
// channel stays open during handshake and drain.
func (c *Conn) sendable(tag channel.Tag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateEstablished:
		return nil
	case StateHandshaking:
		if tag == channel.ControlTag {
			return nil
		}
		return ErrNotEstablished
	case StateDraining:
		if tag == channel.ControlTag {
			return nil
		}
		return ErrDraining
	default:
		return ErrClosed
	}
}

// writeStreamFrame writes one length-prefixed frame on the channel's
// stream, opening it on first use. Writes on one channel are
// serialized; channels write independently.
func (c *Conn) writeStreamFrame(ctx context.Context, tag channel.Tag, frame []byte) error {
	ss, err := c.streamFor(ctx, tag)
	if err != nil {
		return err
	}

	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(frame)))

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, err := ss.s.Write(hdr[:n]); err != nil {
		return err
	}
	_, err = ss.s.Write(frame)
	return err
}

func (c *Conn) streamFor(ctx context.Context, tag channel.Tag) (*sendStream, error) {
	c.streamMu.Lock()
	if ss, ok := c.streams[tag]; ok {
		c.streamMu.Unlock()
		return ss, nil
	}
	c.streamMu.Unlock()

	// Open outside the map lock; racing opens are reconciled below.
	s, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}

	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if ss, ok := c.streams[tag]; ok {
		s.CancelWrite(0)
		return ss, nil
	}
	ss := &sendStream{s: s}
	c.streams[tag] = ss
	return ss, nil
}

// acceptStreams receives the peer's channel streams and spawns a frame
// reader per stream.
func (c *Conn) acceptStreams() {
	defer c.wg.Done()
	for {
		s, err := c.qc.AcceptStream(c.ctx)
		if err != nil {
			c.transportGone(err)
			return
		}
		c.wg.Add(1)
		go c.readStream(s)
	}
}

func (c *Conn) readStream(s *quic.Stream) {
	defer c.wg.Done()
	br := bufio.NewReader(s)
	maxFrame := uint64(c.cfg.Codec.MaxFrameSize())

	for {
		frameLen, err := binary.ReadUvarint(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.transportGone(err)
			}
			return
		}
		if frameLen > maxFrame {
			c.fail(ReasonDecodeError, fmt.Errorf("frame length %d exceeds limit %d", frameLen, maxFrame))
			return
		}

		buf := c.pool().Get(int(frameLen))
		*buf = (*buf)[:frameLen]
		if _, err := io.ReadFull(br, *buf); err != nil {
			c.pool().Put(buf)
			c.transportGone(err)
			return
		}

		ok := c.handleFrame(*buf)
		c.pool().Put(buf)
		if !ok {
			return
		}
	}
}

// readDatagrams receives unreliable-channel traffic.
func (c *Conn) readDatagrams() {
	defer c.wg.Done()
	for {
		data, err := c.qc.ReceiveDatagram(c.ctx)
		if err != nil {
			c.transportGone(err)
			return
		}
		if !c.handleFrame(data) {
			return
		}
	}
}

// handleFrame decodes and routes one frame. It returns false when the
// connection has faulted and the caller's loop must stop.
func (c *Conn) handleFrame(data []byte) bool {
	frame, err := c.cfg.Codec.Decode(data)
	if err != nil {
		switch {
		case errors.Is(err, codec.ErrDecompressionLimit):
			c.fail(ReasonDecompressionLimit, err)
		default:
			c.fail(ReasonDecodeError, err)
		}
		return false
	}
	defer frame.Release()

	c.stats.bytesReceived.Add(uint64(len(data)))
	c.touch()

	tag := channel.Tag(frame.Channel)
	if tag == channel.ControlTag {
		return c.handleControl(frame.Payload)
	}

	c.mu.Lock()
	ready := c.state == StateEstablished || c.state == StateDraining
	c.mu.Unlock()
	if !ready {
		c.fail(ReasonDecodeError, fmt.Errorf("application frame on channel %d before hello", tag))
		return false
	}

	// The multiplexer may retain the payload for reordering, and the
	// application consumes it asynchronously, so it gets its own copy.
	owned := append([]byte(nil), frame.Payload...)
	out, err := c.mux.Deliver(tag, frame.Seq, frame.HasSeq, owned)
	if err != nil {
		switch {
		case errors.Is(err, channel.ErrReorderOverflow):
			c.fail(ReasonReorderOverflow, fmt.Errorf("channel %d: %w", tag, err))
		default:
			c.fail(ReasonDecodeError, err)
		}
		return false
	}
	for _, payload := range out {
		c.stats.msgsReceived.Add(1)
		c.deliver(c.ctx, Message{Peer: c.peer, Channel: tag, Payload: payload})
	}
	return true
}

// handleControl processes one message on the reserved channel.
func (c *Conn) handleControl(payload []byte) bool {
	msg, err := protocol.Parse(payload)
	if err != nil {
		c.fail(ReasonDecodeError, err)
		return false
	}

	switch msg.Type {
	case protocol.TypeHello:
		return c.handleHello(msg.Hello)
	case protocol.TypePing:
		reply := protocol.AppendPong(nil, protocol.Pong{ID: msg.Ping.ID})
		if err := c.Send(c.ctx, channel.ControlTag, reply); err != nil {
			c.cfg.Logger.Debug("pong send failed", "peer", c.peer.Short(), "error", err)
		}
	case protocol.TypePong:
		c.recordPong(msg.Pong.ID)
	case protocol.TypeDrain:
		c.mu.Lock()
		c.peerDraining = true
		c.mu.Unlock()
		c.cfg.Logger.Debug("peer draining", "peer", c.peer.Short())
	}
	return true
}

func (c *Conn) sendHello() error {
	algos := make([]uint8, len(c.cfg.CompressionPriority))
	for i, a := range c.cfg.CompressionPriority {
		algos[i] = uint8(a)
	}
	hello := protocol.AppendHello(nil, protocol.Hello{
		Version:     protocol.Current,
		Compression: algos,
	})
	return c.Send(c.ctx, channel.ControlTag, hello)
}

func (c *Conn) handleHello(h protocol.Hello) bool {
	if !protocol.Current.Compatible(h.Version) {
		c.fail(ReasonVersionMismatch,
			fmt.Errorf("peer speaks protocol %s, local %s", h.Version, protocol.Current))
		return false
	}

	remote := make([]codec.Algorithm, len(h.Compression))
	for i, a := range h.Compression {
		remote[i] = codec.Algorithm(a)
	}

	c.mu.Lock()
	if c.helloReceived {
		c.mu.Unlock()
		c.fail(ReasonDecodeError, errors.New("duplicate hello"))
		return false
	}
	c.helloReceived = true
	c.negotiated = codec.Negotiate(c.cfg.CompressionPriority, remote)
	if err := c.state.ValidateTransition(StateEstablished); err != nil {
		c.mu.Unlock()
		return false
	}
	c.state = StateEstablished
	c.establishedAt = c.cfg.Clock.Now()
	negotiated := c.negotiated
	close(c.established)
	c.mu.Unlock()

	c.cfg.Logger.Info("connection established",
		"peer", c.peer.Short(), "direction", c.dir.String(), "compression", negotiated.String())
	c.emitEvent(StateEstablished, ReasonNone, nil)
	return true
}

// supervise runs the handshake deadline, keepalive pings, idle
// detection, and migration policy on one timer loop.
func (c *Conn) supervise() {
	defer c.wg.Done()

	hsTimer := c.cfg.Clock.Timer(c.cfg.HandshakeTimeout)
	defer hsTimer.Stop()
	ticker := c.cfg.Clock.Ticker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-hsTimer.C:
			c.mu.Lock()
			handshaking := c.state == StateHandshaking
			c.mu.Unlock()
			if handshaking {
				c.fail(ReasonHandshakeTimeout,
					fmt.Errorf("no hello within %s", c.cfg.HandshakeTimeout))
				return
			}
		case <-ticker.C:
			if !c.tick() {
				return
			}
		}
	}
}

// tick runs one keepalive round. It returns false once the connection
// is terminal.
func (c *Conn) tick() bool {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state.IsTerminal() {
		return false
	}
	if state != StateEstablished && state != StateDraining {
		return true
	}

	now := c.cfg.Clock.Now()
	if now.Sub(c.lastActivity.Load()) > c.cfg.IdleTimeout {
		c.fail(ReasonIdleTimeout, fmt.Errorf("no traffic for %s", c.cfg.IdleTimeout))
		return false
	}

	if addr := c.qc.RemoteAddr(); !sameAddr(addr, c.RemoteAddr()) {
		if c.cfg.Migration == MigrationReject {
			c.fail(ReasonMigrationRejected,
				fmt.Errorf("peer moved from %s to %s", c.RemoteAddr(), addr))
			return false
		}
		c.mu.Lock()
		old := c.remoteAddr
		c.remoteAddr = addr
		c.mu.Unlock()
		c.cfg.Logger.Info("peer migrated", "peer", c.peer.Short(), "from", old.String(), "to", addr.String())
	}

	c.sendPing(now)
	return true
}

func (c *Conn) sendPing(now time.Time) {
	c.pingMu.Lock()
	c.nextPingID++
	id := c.nextPingID
	c.outstanding[id] = now
	c.pingsSent++
	// Unanswered pings older than two intervals count as lost.
	for oldID, sent := range c.outstanding {
		if now.Sub(sent) > 2*c.cfg.KeepAliveInterval {
			delete(c.outstanding, oldID)
		}
	}
	c.pingMu.Unlock()

	ping := protocol.AppendPing(nil, protocol.Ping{ID: id})
	if err := c.Send(c.ctx, channel.ControlTag, ping); err != nil {
		c.cfg.Logger.Debug("ping send failed", "peer", c.peer.Short(), "error", err)
	}
}

func (c *Conn) recordPong(id uint64) {
	now := c.cfg.Clock.Now()
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	sent, ok := c.outstanding[id]
	if !ok {
		return
	}
	delete(c.outstanding, id)
	c.pongsRecv++

	sample := now.Sub(sent)
	if c.smoothedRTT == 0 {
		c.smoothedRTT = sample
	} else {
		c.smoothedRTT = time.Duration((1-rttAlpha)*float64(c.smoothedRTT) + rttAlpha*float64(sample))
	}
}

// Drain performs a graceful shutdown: new sends are refused, the drain
// announcement goes out, queued reliable data flushes, then the
// connection closes. ctx bounds the flush wait.
func (c *Conn) Drain(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateDraining {
		c.mu.Unlock()
		return nil
	}
	if err := c.state.ValidateTransition(StateDraining); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = StateDraining
	c.mu.Unlock()
	c.emitEvent(StateDraining, ReasonNone, nil)

	if err := c.Send(ctx, channel.ControlTag, protocol.AppendDrain(nil)); err != nil {
		c.cfg.Logger.Debug("drain announce failed", "peer", c.peer.Short(), "error", err)
	}

	// Wait for queued reliable bytes to flush.
	ticker := c.cfg.Clock.Ticker(10 * time.Millisecond)
	defer ticker.Stop()
	for !c.flushed() {
		select {
		case <-ctx.Done():
			return c.Close()
		case <-c.done:
			return nil
		case <-ticker.C:
		}
	}
	return c.Close()
}

func (c *Conn) flushed() bool {
	for _, d := range c.mux.Definitions() {
		if c.mux.QueuedBytes(d.Tag) > 0 {
			return false
		}
	}
	return true
}

// Close shuts the connection down immediately. Safe to call more than
// once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.teardown(closeCodeNone, "closed")
	c.emitEvent(StateClosed, ReasonNone, nil)
	return nil
}

// fail moves the connection to StateFailed with the given reason.
// Later faults on an already-terminal connection are ignored.
func (c *Conn) fail(reason FailReason, err error) {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.reason = reason
	c.err = err
	c.mu.Unlock()

	code := closeCodeProtocol
	if reason == ReasonSuperseded {
		code = closeCodeSuperseded
	}
	c.cfg.Logger.Warn("connection failed",
		"peer", c.peer.Short(), "reason", reason.String(), "error", err)
	c.teardown(code, reason.String())
	c.emitEvent(StateFailed, reason, err)
}

// transportGone maps an I/O error from the transport to a terminal
// state. Orderly local shutdown has already made the state terminal and
// the error is ignored.
func (c *Conn) transportGone(err error) {
	c.mu.Lock()
	terminal := c.state.IsTerminal()
	c.mu.Unlock()
	if terminal || errors.Is(err, context.Canceled) {
		return
	}

	var appErr *quic.ApplicationError
	reason := ReasonTransport
	if errors.As(err, &appErr) && appErr.ErrorCode == closeCodeSuperseded {
		reason = ReasonSuperseded
	}
	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		reason = ReasonIdleTimeout
	}
	c.fail(reason, err)
}

// supersede fails the connection because a newer one from the same
// peer replaced it.
func (c *Conn) supersede() {
	c.fail(ReasonSuperseded, errors.New("replaced by a newer connection from the same peer"))
}

func (c *Conn) teardown(code quic.ApplicationErrorCode, msg string) {
	c.cancel()
	c.mux.Close()
	c.qc.CloseWithError(code, msg)
	close(c.done)
}

func (c *Conn) emitEvent(state State, reason FailReason, err error) {
	c.emit(Event{
		Peer:      c.peer,
		Addr:      c.RemoteAddr(),
		State:     state,
		Reason:    reason,
		Error:     err,
		Timestamp: c.cfg.Clock.Now(),
	})
}

func (c *Conn) touch() {
	c.lastActivity.Store(c.cfg.Clock.Now())
}

func (c *Conn) pool() *pool.BufferPool {
	if c.cfg.Pool != nil {
		return c.cfg.Pool
	}
	return pool.Global()
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
