package wireberry

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry/pkg/banlist"
	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/codec"
	"github.com/blockberries/wireberry/pkg/connection"
)

// Default configuration values.
const (
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
	DefaultKeepAliveInterval = 5 * time.Second
	DefaultMaxPerSource      = 8
	DefaultEventBufferSize   = 100
	DefaultMessageBufferSize = 1000
	DefaultSessionCacheSize  = 128
	DefaultSessionTTL        = 24 * time.Hour
	DefaultOutboundBytes     = 1 << 20
)

// Config holds the configuration for a Wireberry endpoint.
type Config struct {
	// PrivateKey is the Ed25519 private key for this endpoint's identity.
	// This is required and must be provided by the application.
	PrivateKey ed25519.PrivateKey

	// ListenAddrs are the multiaddresses this endpoint will listen on.
	// May be empty for a dial-only endpoint.
	ListenAddrs []multiaddr.Multiaddr

	// Channels defines the delivery channels available on every
	// connection. At least one channel is required. Tag 0 is reserved
	// for the control channel and is defined implicitly.
	Channels []channel.Definition

	// HandshakeTimeout is the maximum duration allowed for a connection
	// to reach the established state, covering both the QUIC handshake
	// and the control-channel hello exchange.
	HandshakeTimeout time.Duration

	// ResumeHandshakeTimeout replaces HandshakeTimeout when a cached
	// session ticket exists for the dialed peer. Zero defaults to half
	// the full budget.
	ResumeHandshakeTimeout time.Duration

	// IdleTimeout is how long a connection survives without any
	// inbound traffic before it is presumed dead.
	IdleTimeout time.Duration

	// KeepAliveInterval is the interval between control-channel pings
	// on established connections.
	KeepAliveInterval time.Duration

	// CompressionPriority orders the compression algorithms offered in
	// the hello, most preferred first. Defaults to Zstd then S2.
	CompressionPriority []codec.Algorithm

	// Migration decides what happens when a peer's address changes
	// mid-connection. The default rejects migration.
	Migration connection.MigrationPolicy

	// MaxPerSource caps concurrent inbound connections from one source IP.
	MaxPerSource int

	// BanRules seeds the address filter. Each rule is applied in order;
	// first match wins.
	BanRules []banlist.Rule

	// AllowListMode inverts the filter default: only addresses matched
	// by an Allow rule are admitted.
	AllowListMode bool

	// MaxPayloadSize caps the application payload of a single message.
	MaxPayloadSize int

	// MaxDecompressedSize caps the declared decompressed size of an
	// inbound frame.
	MaxDecompressedSize int

	// OutboundBytes is the default per-channel backpressure budget in
	// bytes, used for channels that do not set their own.
	OutboundBytes int64

	// SessionCacheSize is the number of TLS session tickets retained
	// for resumption, one per peer.
	SessionCacheSize int

	// SessionTTL bounds how long a cached session ticket is honored.
	SessionTTL time.Duration

	// AddressBookPath is the file path for persisting known peers.
	// Empty disables persistence.
	AddressBookPath string

	// EventBufferSize is the buffer size for the connection events channel.
	EventBufferSize int

	// MessageBufferSize is the buffer size for the incoming messages channel.
	MessageBufferSize int

	// Logger is the logger for the endpoint. If nil, a NopLogger is used.
	// The logger must be safe for concurrent use.
	Logger Logger

	// Metrics is the metrics collector for the endpoint. If nil, a
	// NopMetrics is used. Must be safe for concurrent use.
	Metrics Metrics
}

// Validate checks that the configuration is valid and returns an error
// describing any problems found.
func (c *Config) Validate() error {
	if c.PrivateKey == nil {
		return ErrMissingPrivateKey
	}
	if len(c.PrivateKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrInvalidConfig, ed25519.PrivateKeySize, len(c.PrivateKey))
	}
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	seen := make(map[channel.Tag]bool, len(c.Channels))
	for _, def := range c.Channels {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrInvalidConfig, def.Tag, err)
		}
		if def.Tag == channel.ControlTag {
			return fmt.Errorf("%w: channel tag %d is reserved", ErrInvalidConfig, channel.ControlTag)
		}
		if seen[def.Tag] {
			return fmt.Errorf("%w: duplicate channel tag %d", ErrInvalidConfig, def.Tag)
		}
		seen[def.Tag] = true
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: handshake timeout cannot be negative", ErrInvalidConfig)
	}
	if c.ResumeHandshakeTimeout < 0 {
		return fmt.Errorf("%w: resume handshake timeout cannot be negative", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout cannot be negative", ErrInvalidConfig)
	}
	if c.KeepAliveInterval < 0 {
		return fmt.Errorf("%w: keep-alive interval cannot be negative", ErrInvalidConfig)
	}
	if c.MaxPerSource < 0 {
		return fmt.Errorf("%w: max per source cannot be negative", ErrInvalidConfig)
	}
	if c.MaxPayloadSize < 0 {
		return fmt.Errorf("%w: max payload size cannot be negative", ErrInvalidConfig)
	}
	if c.MaxDecompressedSize < 0 {
		return fmt.Errorf("%w: max decompressed size cannot be negative", ErrInvalidConfig)
	}
	if c.OutboundBytes < 0 {
		return fmt.Errorf("%w: outbound bytes cannot be negative", ErrInvalidConfig)
	}
	if c.SessionCacheSize < 0 {
		return fmt.Errorf("%w: session cache size cannot be negative", ErrInvalidConfig)
	}
	if c.EventBufferSize < 0 {
		return fmt.Errorf("%w: event buffer size cannot be negative", ErrInvalidConfig)
	}
	if c.MessageBufferSize < 0 {
		return fmt.Errorf("%w: message buffer size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults sets default values for any unset optional fields.
func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ResumeHandshakeTimeout == 0 {
		c.ResumeHandshakeTimeout = c.HandshakeTimeout / 2
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if len(c.CompressionPriority) == 0 {
		c.CompressionPriority = []codec.Algorithm{codec.Zstd, codec.S2}
	}
	if c.MaxPerSource == 0 {
		c.MaxPerSource = DefaultMaxPerSource
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = codec.DefaultMaxPayloadSize
	}
	if c.MaxDecompressedSize == 0 {
		c.MaxDecompressedSize = codec.DefaultMaxDecompressedSize
	}
	if c.OutboundBytes == 0 {
		c.OutboundBytes = DefaultOutboundBytes
	}
	if c.SessionCacheSize == 0 {
		c.SessionCacheSize = DefaultSessionCacheSize
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.MessageBufferSize == 0 {
		c.MessageBufferSize = DefaultMessageBufferSize
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
}

// ConfigOption is a functional option for configuring an Endpoint.
type ConfigOption func(*Config)

// WithHandshakeTimeout sets the handshake timeout duration.
func WithHandshakeTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithResumeHandshakeTimeout sets the reduced handshake budget used
// when a cached session ticket exists for the dialed peer.
func WithResumeHandshakeTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.ResumeHandshakeTimeout = d
	}
}

// WithIdleTimeout sets the connection idle timeout.
func WithIdleTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.IdleTimeout = d
	}
}

// WithKeepAliveInterval sets the control-channel ping interval.
func WithKeepAliveInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.KeepAliveInterval = d
	}
}

// WithCompressionPriority sets the offered compression algorithms,
// most preferred first.
func WithCompressionPriority(algos ...codec.Algorithm) ConfigOption {
	return func(c *Config) {
		c.CompressionPriority = algos
	}
}

// WithMigrationPolicy sets the address migration policy.
func WithMigrationPolicy(p connection.MigrationPolicy) ConfigOption {
	return func(c *Config) {
		c.Migration = p
	}
}

// WithMaxPerSource caps concurrent inbound connections per source IP.
func WithMaxPerSource(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPerSource = n
	}
}

// WithBanRules seeds the address filter.
func WithBanRules(rules ...banlist.Rule) ConfigOption {
	return func(c *Config) {
		c.BanRules = rules
	}
}

// WithAllowListMode switches the filter to allow-list semantics.
func WithAllowListMode() ConfigOption {
	return func(c *Config) {
		c.AllowListMode = true
	}
}

// WithMaxPayloadSize caps the application payload of a single message.
func WithMaxPayloadSize(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPayloadSize = n
	}
}

// WithMaxDecompressedSize caps the declared decompressed size of
// inbound frames.
func WithMaxDecompressedSize(n int) ConfigOption {
	return func(c *Config) {
		c.MaxDecompressedSize = n
	}
}

// WithOutboundBytes sets the default per-channel backpressure budget.
func WithOutboundBytes(n int64) ConfigOption {
	return func(c *Config) {
		c.OutboundBytes = n
	}
}

// WithSessionCache sizes the TLS session ticket cache and its TTL.
func WithSessionCache(size int, ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.SessionCacheSize = size
		c.SessionTTL = ttl
	}
}

// WithAddressBookPath enables persisting known peers to the given path.
func WithAddressBookPath(path string) ConfigOption {
	return func(c *Config) {
		c.AddressBookPath = path
	}
}

// WithEventBufferSize sets the buffer size for the events channel.
func WithEventBufferSize(size int) ConfigOption {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// WithMessageBufferSize sets the buffer size for the messages channel.
func WithMessageBufferSize(size int) ConfigOption {
	return func(c *Config) {
		c.MessageBufferSize = size
	}
}

// WithLogger sets the logger for the endpoint.
// The logger must be safe for concurrent use.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics collector for the endpoint.
// The metrics collector must be safe for concurrent use.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = m
	}
}

// NewConfig creates a new Config with the required fields and applies
// any provided options. It applies defaults for unset optional fields
// but does not validate the configuration.
func NewConfig(
	privateKey ed25519.PrivateKey,
	listenAddrs []multiaddr.Multiaddr,
	channels []channel.Definition,
	opts ...ConfigOption,
) *Config {
	c := &Config{
		PrivateKey:  privateKey,
		ListenAddrs: listenAddrs,
		Channels:    channels,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applyDefaults()
	return c
}
