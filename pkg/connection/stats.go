package connection

import (
	"net"
	"time"

	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/codec"
	"github.com/blockberries/wireberry/pkg/identity"
)

// Stats is a point-in-time snapshot of one connection.
type Stats struct {
	Peer       identity.Fingerprint
	Direction  Direction
	State      State
	FailReason FailReason
	RemoteAddr net.Addr

	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64

	// SmoothedRTT is the EWMA of keepalive round trips. Zero until the
	// first pong arrives.
	SmoothedRTT time.Duration

	// PingsSent and PongsReceived feed the loss estimate.
	PingsSent     uint64
	PongsReceived uint64

	// Compression is the algorithm negotiated in the hello exchange.
	Compression codec.Algorithm

	// PeerDraining reports whether the peer announced a drain.
	PeerDraining bool

	EstablishedAt time.Time
	LastActivity  time.Time

	// QueuedBytes is the per-channel outbound backlog.
	QueuedBytes map[channel.Tag]int64
}

// LossRatio estimates keepalive loss as the fraction of unanswered
// pings. In-flight pings inflate it briefly.
func (s Stats) LossRatio() float64 {
	if s.PingsSent == 0 {
		return 0
	}
	return 1 - float64(s.PongsReceived)/float64(s.PingsSent)
}

// Stats returns a snapshot of the connection's counters and state.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Peer:          c.peer,
		Direction:     c.dir,
		State:         c.state,
		FailReason:    c.reason,
		RemoteAddr:    c.remoteAddr,
		Compression:   c.negotiated,
		PeerDraining:  c.peerDraining,
		EstablishedAt: c.establishedAt,
	}
	c.mu.Unlock()

	c.pingMu.Lock()
	s.SmoothedRTT = c.smoothedRTT
	s.PingsSent = c.pingsSent
	s.PongsReceived = c.pongsRecv
	c.pingMu.Unlock()

	s.BytesSent = c.stats.bytesSent.Load()
	s.BytesReceived = c.stats.bytesReceived.Load()
	s.MessagesSent = c.stats.msgsSent.Load()
	s.MessagesReceived = c.stats.msgsReceived.Load()
	s.LastActivity = c.lastActivity.Load()

	s.QueuedBytes = make(map[channel.Tag]int64)
	for _, d := range c.mux.Definitions() {
		if d.Class.Reliable() {
			s.QueuedBytes[d.Tag] = c.mux.QueuedBytes(d.Tag)
		}
	}
	return s
}
