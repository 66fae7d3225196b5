package wireberry

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry/pkg/channel"
	"github.com/blockberries/wireberry/pkg/codec"
)

func generateTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return priv
}

func mustParseMultiaddr(t *testing.T, s string) multiaddr.Multiaddr {
	t.Helper()
	addr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		t.Fatalf("failed to parse multiaddr %q: %v", s, err)
	}
	return addr
}

func testChannels() []channel.Definition {
	return []channel.Definition{
		{Tag: 1, Class: channel.ReliableOrdered},
		{Tag: 2, Class: channel.Unreliable},
	}
}

func TestConfig_Validate_RequiredFields(t *testing.T) {
	validKey := generateTestKey(t)

	tests := []struct {
		name      string
		config    Config
		wantErr   error
		wantNoErr bool
	}{
		{
			name:    "missing private key",
			config:  Config{Channels: testChannels()},
			wantErr: ErrMissingPrivateKey,
		},
		{
			name:    "invalid private key size",
			config:  Config{PrivateKey: []byte("short"), Channels: testChannels()},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "no channels",
			config:  Config{PrivateKey: validKey},
			wantErr: ErrNoChannels,
		},
		{
			name:      "valid minimal config",
			config:    Config{PrivateKey: validKey, Channels: testChannels()},
			wantNoErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantNoErr {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Channels(t *testing.T) {
	key := generateTestKey(t)

	tests := []struct {
		name     string
		channels []channel.Definition
		wantErr  bool
	}{
		{
			name:     "reserved control tag",
			channels: []channel.Definition{{Tag: 0, Class: channel.ReliableOrdered}},
			wantErr:  true,
		},
		{
			name: "duplicate tags",
			channels: []channel.Definition{
				{Tag: 1, Class: channel.ReliableOrdered},
				{Tag: 1, Class: channel.Unreliable},
			},
			wantErr: true,
		},
		{
			name: "many distinct tags",
			channels: []channel.Definition{
				{Tag: 1, Class: channel.ReliableOrdered},
				{Tag: 2, Class: channel.ReliableUnordered},
				{Tag: 3, Class: channel.Unreliable},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{PrivateKey: key, Channels: tt.channels}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_NegativeValues(t *testing.T) {
	key := generateTestKey(t)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative handshake timeout", func(c *Config) { c.HandshakeTimeout = -1 }},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -1 }},
		{"negative keep-alive", func(c *Config) { c.KeepAliveInterval = -1 }},
		{"negative max per source", func(c *Config) { c.MaxPerSource = -1 }},
		{"negative payload size", func(c *Config) { c.MaxPayloadSize = -1 }},
		{"negative event buffer", func(c *Config) { c.EventBufferSize = -1 }},
		{"negative message buffer", func(c *Config) { c.MessageBufferSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{PrivateKey: key, Channels: testChannels()}
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{PrivateKey: generateTestKey(t), Channels: testChannels()}
	cfg.applyDefaults()

	if cfg.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", cfg.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if cfg.ResumeHandshakeTimeout != DefaultHandshakeTimeout/2 {
		t.Errorf("ResumeHandshakeTimeout = %v, want %v", cfg.ResumeHandshakeTimeout, DefaultHandshakeTimeout/2)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, DefaultIdleTimeout)
	}
	if cfg.KeepAliveInterval != DefaultKeepAliveInterval {
		t.Errorf("KeepAliveInterval = %v, want %v", cfg.KeepAliveInterval, DefaultKeepAliveInterval)
	}
	if len(cfg.CompressionPriority) != 2 || cfg.CompressionPriority[0] != codec.Zstd {
		t.Errorf("CompressionPriority = %v, want [Zstd S2]", cfg.CompressionPriority)
	}
	if cfg.Migration != MigrationReject {
		t.Errorf("Migration = %v, want MigrationReject", cfg.Migration)
	}
	if cfg.EventBufferSize != DefaultEventBufferSize {
		t.Errorf("EventBufferSize = %d, want %d", cfg.EventBufferSize, DefaultEventBufferSize)
	}
	if cfg.MessageBufferSize != DefaultMessageBufferSize {
		t.Errorf("MessageBufferSize = %d, want %d", cfg.MessageBufferSize, DefaultMessageBufferSize)
	}
	if _, ok := cfg.Logger.(NopLogger); !ok {
		t.Errorf("Logger = %T, want NopLogger", cfg.Logger)
	}
	if _, ok := cfg.Metrics.(NopMetrics); !ok {
		t.Errorf("Metrics = %T, want NopMetrics", cfg.Metrics)
	}
}

func TestNewConfig_Options(t *testing.T) {
	key := generateTestKey(t)
	addr := mustParseMultiaddr(t, "/ip4/127.0.0.1/udp/9000/quic-v1")

	cfg := NewConfig(key, []multiaddr.Multiaddr{addr}, testChannels(),
		WithHandshakeTimeout(3*time.Second),
		WithIdleTimeout(time.Minute),
		WithKeepAliveInterval(2*time.Second),
		WithCompressionPriority(codec.S2),
		WithMigrationPolicy(MigrationAllow),
		WithMaxPerSource(4),
		WithMaxPayloadSize(64<<10),
		WithOutboundBytes(256<<10),
		WithEventBufferSize(10),
		WithMessageBufferSize(20),
		WithAddressBookPath("/tmp/peers.json"),
	)

	if cfg.HandshakeTimeout != 3*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 3s", cfg.HandshakeTimeout)
	}
	if cfg.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v, want 1m", cfg.IdleTimeout)
	}
	if cfg.KeepAliveInterval != 2*time.Second {
		t.Errorf("KeepAliveInterval = %v, want 2s", cfg.KeepAliveInterval)
	}
	if len(cfg.CompressionPriority) != 1 || cfg.CompressionPriority[0] != codec.S2 {
		t.Errorf("CompressionPriority = %v, want [S2]", cfg.CompressionPriority)
	}
	if cfg.Migration != MigrationAllow {
		t.Errorf("Migration = %v, want MigrationAllow", cfg.Migration)
	}
	if cfg.MaxPerSource != 4 {
		t.Errorf("MaxPerSource = %d, want 4", cfg.MaxPerSource)
	}
	if cfg.MaxPayloadSize != 64<<10 {
		t.Errorf("MaxPayloadSize = %d, want %d", cfg.MaxPayloadSize, 64<<10)
	}
	if cfg.OutboundBytes != 256<<10 {
		t.Errorf("OutboundBytes = %d, want %d", cfg.OutboundBytes, 256<<10)
	}
	if cfg.EventBufferSize != 10 || cfg.MessageBufferSize != 20 {
		t.Errorf("buffers = %d/%d, want 10/20", cfg.EventBufferSize, cfg.MessageBufferSize)
	}
	if cfg.AddressBookPath != "/tmp/peers.json" {
		t.Errorf("AddressBookPath = %q", cfg.AddressBookPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}
