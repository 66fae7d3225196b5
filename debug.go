package wireberry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DebugState represents the complete state of an Endpoint for
// debugging purposes.
type DebugState struct {
	// Endpoint identity
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`

	// Listen addresses
	ListenAddrs []string `json:"listen_addrs"`

	// Protocol version
	Version string `json:"version"`

	// Known peers summary
	AddressBook DebugAddressBook `json:"address_book"`

	// Configuration
	Config DebugConfig `json:"config"`

	// Live connections
	Connections []DebugConnection `json:"connections,omitempty"`

	// Counters
	FilteredPackets uint64 `json:"filtered_packets"`
	DroppedEvents   uint64 `json:"dropped_events"`

	// Timestamp when state was captured
	CapturedAt time.Time `json:"captured_at"`
}

// DebugAddressBook represents address book state for debugging.
type DebugAddressBook struct {
	Enabled    bool     `json:"enabled"`
	KnownPeers int      `json:"known_peers"`
	Peers      []string `json:"peers,omitempty"`
}

// DebugConfig represents configuration summary for debugging.
type DebugConfig struct {
	HandshakeTimeout  string `json:"handshake_timeout"`
	IdleTimeout       string `json:"idle_timeout"`
	KeepAliveInterval string `json:"keep_alive_interval"`
	Channels          int    `json:"channels"`
	MaxPayloadSize    int    `json:"max_payload_size"`
	BanRules          int    `json:"ban_rules"`
	AllowListMode     bool   `json:"allow_list_mode"`
}

// DebugConnection represents one live connection for debugging.
type DebugConnection struct {
	Peer        string `json:"peer"`
	Direction   string `json:"direction"`
	State       string `json:"state"`
	RemoteAddr  string `json:"remote_addr,omitempty"`
	Compression string `json:"compression"`
	RTT         string `json:"rtt,omitempty"`
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_received"`
	QueuedBytes int64  `json:"queued_bytes"`
}

// DumpState captures the current state of the endpoint for debugging.
// This is useful for troubleshooting connection issues.
func (e *Endpoint) DumpState() *DebugState {
	state := &DebugState{
		Fingerprint:     e.Fingerprint().String(),
		PublicKey:       fmt.Sprintf("%x", []byte(e.PublicKey())),
		Version:         CurrentVersion().String(),
		FilteredPackets: e.engine.FilteredPackets(),
		DroppedEvents:   e.connections.DroppedEvents(),
		CapturedAt:      time.Now(),
	}

	for _, addr := range e.Addrs() {
		state.ListenAddrs = append(state.ListenAddrs, addr.String())
	}

	state.AddressBook = e.dumpAddressBook()
	state.Config = e.dumpConfig()

	for _, c := range e.connections.Conns() {
		s := c.Stats()
		dc := DebugConnection{
			Peer:        s.Peer.Short(),
			Direction:   s.Direction.String(),
			State:       s.State.String(),
			Compression: s.Compression.String(),
			BytesSent:   s.BytesSent,
			BytesRecv:   s.BytesReceived,
		}
		if s.RemoteAddr != nil {
			dc.RemoteAddr = s.RemoteAddr.String()
		}
		if s.SmoothedRTT > 0 {
			dc.RTT = s.SmoothedRTT.String()
		}
		for _, queued := range s.QueuedBytes {
			dc.QueuedBytes += queued
		}
		state.Connections = append(state.Connections, dc)
	}

	return state
}

// dumpAddressBook returns address book debug info.
func (e *Endpoint) dumpAddressBook() DebugAddressBook {
	if e.addressBook == nil {
		return DebugAddressBook{Enabled: false}
	}

	peers := e.addressBook.ListPeers()
	ab := DebugAddressBook{
		Enabled:    true,
		KnownPeers: len(peers),
	}
	for _, p := range peers {
		ab.Peers = append(ab.Peers, p.Fingerprint.Short())
	}
	return ab
}

// dumpConfig returns configuration debug info.
func (e *Endpoint) dumpConfig() DebugConfig {
	return DebugConfig{
		HandshakeTimeout:  e.config.HandshakeTimeout.String(),
		IdleTimeout:       e.config.IdleTimeout.String(),
		KeepAliveInterval: e.config.KeepAliveInterval.String(),
		Channels:          len(e.config.Channels),
		MaxPayloadSize:    e.config.MaxPayloadSize,
		BanRules:          e.filter.Snapshot().Len(),
		AllowListMode:     e.filter.Snapshot().AllowListMode(),
	}
}

// DumpStateJSON returns the endpoint state as formatted JSON.
func (e *Endpoint) DumpStateJSON() (string, error) {
	state := e.DumpState()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(data), nil
}

// DumpStateString returns a human-readable representation of the
// endpoint state.
func (e *Endpoint) DumpStateString() string {
	state := e.DumpState()
	var sb strings.Builder

	sb.WriteString("=== Wireberry Endpoint Debug State ===\n\n")

	sb.WriteString("IDENTITY:\n")
	sb.WriteString(fmt.Sprintf("  Fingerprint: %s\n", state.Fingerprint))
	if len(state.PublicKey) >= 16 {
		sb.WriteString(fmt.Sprintf("  Public Key:  %s...\n", state.PublicKey[:16]))
	}
	sb.WriteString(fmt.Sprintf("  Version:     %s\n", state.Version))
	sb.WriteString("\n")

	sb.WriteString("LISTEN ADDRESSES:\n")
	if len(state.ListenAddrs) == 0 {
		sb.WriteString("  (none)\n")
	} else {
		for _, addr := range state.ListenAddrs {
			sb.WriteString(fmt.Sprintf("  - %s\n", addr))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("CONFIGURATION:\n")
	sb.WriteString(fmt.Sprintf("  Handshake Timeout: %s\n", state.Config.HandshakeTimeout))
	sb.WriteString(fmt.Sprintf("  Idle Timeout:      %s\n", state.Config.IdleTimeout))
	sb.WriteString(fmt.Sprintf("  Keep-Alive:        %s\n", state.Config.KeepAliveInterval))
	sb.WriteString(fmt.Sprintf("  Channels:          %d\n", state.Config.Channels))
	sb.WriteString(fmt.Sprintf("  Max Payload:       %d bytes\n", state.Config.MaxPayloadSize))
	sb.WriteString(fmt.Sprintf("  Ban Rules:         %d\n", state.Config.BanRules))
	sb.WriteString("\n")

	sb.WriteString("CONNECTIONS:\n")
	if len(state.Connections) == 0 {
		sb.WriteString("  (none)\n")
	} else {
		for _, c := range state.Connections {
			sb.WriteString(fmt.Sprintf("  %s [%s/%s] %s", c.Peer, c.Direction, c.State, c.RemoteAddr))
			if c.RTT != "" {
				sb.WriteString(fmt.Sprintf(" rtt=%s", c.RTT))
			}
			sb.WriteString(fmt.Sprintf(" sent=%d recv=%d queued=%d\n", c.BytesSent, c.BytesRecv, c.QueuedBytes))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("COUNTERS:\n")
	sb.WriteString(fmt.Sprintf("  Filtered Packets: %d\n", state.FilteredPackets))
	sb.WriteString(fmt.Sprintf("  Dropped Events:   %d\n", state.DroppedEvents))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Captured at: %s\n", state.CapturedAt.Format(time.RFC3339)))
	sb.WriteString("======================================\n")

	return sb.String()
}
