package transport

import (
	"net"
	"sync/atomic"

	"github.com/blockberries/wireberry/pkg/banlist"
)

// filteredPacketConn enforces the ban list at the socket, before any
// datagram reaches the secure engine. Inbound packets from banned
// sources vanish without a read; outbound packets to banned
// destinations are swallowed without an error so the caller's send path
// stays oblivious. Banned peers therefore never see a response and
// never cost a handshake.
type filteredPacketConn struct {
	net.PacketConn
	filter  *banlist.Filter
	dropped atomic.Uint64
	onDrop  func(addr net.Addr)
}

func newFilteredPacketConn(conn net.PacketConn, filter *banlist.Filter, onDrop func(net.Addr)) *filteredPacketConn {
	return &filteredPacketConn{PacketConn: conn, filter: filter, onDrop: onDrop}
}

func (c *filteredPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		n, addr, err := c.PacketConn.ReadFrom(p)
		if err != nil {
			return n, addr, err
		}
		if c.filter.AdmitsNetAddr(addr) {
			return n, addr, nil
		}
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop(addr)
		}
	}
}

func (c *filteredPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if !c.filter.AdmitsNetAddr(addr) {
		c.dropped.Add(1)
		return len(p), nil
	}
	return c.PacketConn.WriteTo(p, addr)
}

// Dropped reports how many packets the filter has discarded.
//
// Deadlines and close pass through via the embedded PacketConn.
// quic-go additionally probes for optional interfaces (batched reads,
// ECN) which the wrapper does not forward; the engine trades those
// optimizations for filtering.
func (c *filteredPacketConn) Dropped() uint64 { return c.dropped.Load() }
