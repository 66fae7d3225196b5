package wireberry

import (
	"github.com/blockberries/wireberry/pkg/connection"
	"github.com/blockberries/wireberry/pkg/identity"
)

// ConnectionStats is a point-in-time snapshot of one connection.
type ConnectionStats = connection.Stats

// EndpointStats aggregates statistics across the whole endpoint.
// All fields are snapshot copies and safe to read without
// synchronization.
type EndpointStats struct {
	// Fingerprint is the local identity fingerprint.
	Fingerprint identity.Fingerprint

	// Connections is the number of live connections.
	Connections int

	// BytesSent is the total application bytes sent across all
	// current connections.
	BytesSent uint64

	// BytesReceived is the total application bytes received across
	// all current connections.
	BytesReceived uint64

	// MessagesSent is the total messages sent across all current
	// connections.
	MessagesSent uint64

	// MessagesReceived is the total messages received across all
	// current connections.
	MessagesReceived uint64

	// FilteredPackets counts inbound packets dropped by the ban filter
	// since the endpoint started.
	FilteredPackets uint64

	// DroppedEvents counts lifecycle events discarded because the
	// event buffer was full.
	DroppedEvents uint64

	// Peers holds a per-connection snapshot, one entry per live peer.
	Peers []ConnectionStats
}

// Stats returns a snapshot of the endpoint's statistics, including one
// entry per live connection.
func (e *Endpoint) Stats() EndpointStats {
	conns := e.connections.Conns()

	stats := EndpointStats{
		Fingerprint:     e.identity.Fingerprint(),
		Connections:     len(conns),
		FilteredPackets: e.engine.FilteredPackets(),
		DroppedEvents:   e.connections.DroppedEvents(),
		Peers:           make([]ConnectionStats, 0, len(conns)),
	}

	for _, c := range conns {
		s := c.Stats()
		stats.BytesSent += s.BytesSent
		stats.BytesReceived += s.BytesReceived
		stats.MessagesSent += s.MessagesSent
		stats.MessagesReceived += s.MessagesReceived
		stats.Peers = append(stats.Peers, s)
	}

	return stats
}
