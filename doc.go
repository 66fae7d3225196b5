/*
Package wireberry provides a secure game transport built on QUIC.

Wireberry handles identity pinning, connection lifecycle, and multiplexed
delivery channels with per-channel reliability classes, while delegating
matchmaking and game protocol logic to the consuming application.

# Features

  - TLS 1.3 over QUIC with self-signed certificate identities
  - Peer pinning by certificate fingerprint (SHA-256 of the public key)
  - Reliable-ordered, reliable-unordered, and unreliable delivery channels
  - Per-channel sequencing, reordering, and duplicate suppression
  - Negotiated payload compression (zstd, s2)
  - Session ticket cache for abbreviated reconnect handshakes
  - CIDR ban list enforced at the UDP socket, before the QUIC stack
  - Per-channel backpressure with blocking sends
  - Keepalive probing with RTT and loss estimates
  - Graceful drain that flushes queued reliable data before close
  - JSON-persisted address book of known peers

# Quick Start

Create an endpoint:

	_, privateKey, _ := ed25519.GenerateKey(rand.Reader)
	listenAddr, _ := multiaddr.NewMultiaddr("/ip4/0.0.0.0/udp/9000/quic-v1")

	channels := []channel.Definition{
		{Tag: 1, Class: channel.ReliableOrdered},   // game state
		{Tag: 2, Class: channel.Unreliable},        // position updates
	}

	cfg := wireberry.NewConfig(privateKey,
		[]multiaddr.Multiaddr{listenAddr}, channels)

	endpoint, err := wireberry.New(cfg)
	if err != nil {
		// Handle error
	}

	endpoint.Start()
	defer endpoint.Stop()

Connect to a peer whose fingerprint you learned out of band (from a
matchmaker, lobby service, or invitation):

	err := endpoint.Dial(ctx, peerAddr, peerFingerprint)

Send and receive:

	// Reliable-ordered game event
	endpoint.Send(ctx, peerFingerprint, 1, eventData)

	// Fire-and-forget position update
	endpoint.Send(ctx, peerFingerprint, 2, positionData)

	for msg := range endpoint.Messages() {
		switch msg.Channel {
		case 1:
			applyEvent(msg.Payload)
		case 2:
			applyPosition(msg.Payload)
		}
	}

Monitor connection events:

	for event := range endpoint.Events() {
		switch event.State {
		case wireberry.StateEstablished:
			fmt.Printf("Connected to %s\n", event.Peer.Short())
		case wireberry.StateFailed:
			fmt.Printf("Lost %s: %s\n", event.Peer.Short(), event.Reason)
		}
	}

# Architecture

Wireberry separates concerns clearly:

Application Responsibilities:
  - Peer discovery and fingerprint exchange (matchmaking)
  - Game protocol (message formats, state reconciliation)
  - Deciding which data needs which delivery class

Wireberry Responsibilities:
  - Transport security and identity verification
  - Connection lifecycle and keepalive
  - Channel multiplexing, ordering, and deduplication
  - Compression negotiation
  - Address filtering and rate limits

# Channels

Every connection carries the channels defined in the configuration.
Each channel has a reliability class:

  - ReliableOrdered: QUIC stream delivery plus a receive-side reorder
    buffer; payloads arrive exactly once, in send order.
  - ReliableUnordered: QUIC stream delivery without reordering;
    payloads arrive exactly once, possibly out of order.
  - Unreliable: QUIC datagrams with a duplicate-suppression window;
    payloads may be lost but never duplicated.

Tag 0 is reserved for the control channel that carries the version
handshake, keepalives, and drain announcements.

# Security

  - Ed25519 identity keys, carried in self-signed X.509 certificates
  - TLS 1.3 mutual authentication on every connection
  - Fingerprint pinning: a dial only succeeds if the peer presents the
    expected certificate
  - Decompression size caps against zip-bomb payloads
  - Address bans applied before any handshake work is spent

Private keys never leave the identity module and are never logged or
exposed in error messages.

# Thread Safety

All public Endpoint methods are thread-safe and can be called
concurrently. Channels (Messages, Events) are safe for concurrent reads
from a single consumer.

# Dependencies

  - github.com/quic-go/quic-go - QUIC transport
  - github.com/multiformats/go-multiaddr - Address representation
  - github.com/klauspost/compress - zstd and s2 compression
  - golang.org/x/crypto - Key derivation

# See Also

  - README.md - Getting started and API reference
  - examples/pingpong - Minimal two-endpoint example
*/
package wireberry
