package wireberry

// Metrics defines the metrics collection interface for Wireberry.
// It is designed to be compatible with Prometheus and other metrics systems.
//
// Implementations must be safe for concurrent use.
//
// Metric naming convention:
//   - Counters: <name>_total (e.g., connections_total)
//   - Histograms: <name>_seconds or <name>_bytes (e.g., handshake_duration_seconds)
//   - Gauges: current_<name> (e.g., current_connections)
type Metrics interface {
	// Connection metrics

	// ConnectionOpened increments when a connection is established.
	// Labels: direction (inbound, outbound)
	ConnectionOpened(direction string)

	// ConnectionClosed increments when a connection is closed.
	// Labels: direction (inbound, outbound)
	ConnectionClosed(direction string)

	// ConnectionAttempt records a connection attempt result.
	// Labels: result (success, failure)
	ConnectionAttempt(result string)

	// HandshakeDuration records the duration of a successful handshake.
	HandshakeDuration(seconds float64)

	// HandshakeResult records the result of a handshake attempt.
	// Labels: result (success, failure, timeout)
	HandshakeResult(result string)

	// Channel metrics

	// MessageSent records a message being sent.
	// Labels: channel (the channel tag, formatted as a decimal string)
	MessageSent(channel string, bytes int)

	// MessageReceived records a message being received.
	// Labels: channel (the channel tag, formatted as a decimal string)
	MessageReceived(channel string, bytes int)

	// FramesReordered records frames held in a reorder buffer before delivery.
	// Labels: channel (the channel tag, formatted as a decimal string)
	FramesReordered(channel string)

	// FramesDeduplicated records duplicate frames discarded on an
	// unordered channel.
	// Labels: channel (the channel tag, formatted as a decimal string)
	FramesDeduplicated(channel string)

	// Transport metrics

	// PacketFiltered increments when an inbound packet is dropped by the
	// ban list before reaching the QUIC stack.
	PacketFiltered()

	// SessionResumed records whether a dial used a cached TLS session.
	// Labels: resumed (true, false)
	SessionResumed(resumed bool)

	// CompressionRatio records the compressed-to-original size ratio of
	// an outbound payload that was compressed.
	CompressionRatio(ratio float64)

	// Event metrics

	// EventEmitted records an event being emitted.
	// Labels: state (the connection state)
	EventEmitted(state string)

	// EventDropped records an event being dropped due to buffer full.
	EventDropped()
}

// NopMetrics is a no-op metrics implementation that discards all metrics.
// It is the default when no metrics collector is configured.
type NopMetrics struct{}

// Ensure NopMetrics implements Metrics.
var _ Metrics = NopMetrics{}

// ConnectionOpened implements Metrics.ConnectionOpened (no-op).
func (NopMetrics) ConnectionOpened(direction string) {}

// ConnectionClosed implements Metrics.ConnectionClosed (no-op).
func (NopMetrics) ConnectionClosed(direction string) {}

// ConnectionAttempt implements Metrics.ConnectionAttempt (no-op).
func (NopMetrics) ConnectionAttempt(result string) {}

// HandshakeDuration implements Metrics.HandshakeDuration (no-op).
func (NopMetrics) HandshakeDuration(seconds float64) {}

// HandshakeResult implements Metrics.HandshakeResult (no-op).
func (NopMetrics) HandshakeResult(result string) {}

// MessageSent implements Metrics.MessageSent (no-op).
func (NopMetrics) MessageSent(channel string, bytes int) {}

// MessageReceived implements Metrics.MessageReceived (no-op).
func (NopMetrics) MessageReceived(channel string, bytes int) {}

// FramesReordered implements Metrics.FramesReordered (no-op).
func (NopMetrics) FramesReordered(channel string) {}

// FramesDeduplicated implements Metrics.FramesDeduplicated (no-op).
func (NopMetrics) FramesDeduplicated(channel string) {}

// PacketFiltered implements Metrics.PacketFiltered (no-op).
func (NopMetrics) PacketFiltered() {}

// SessionResumed implements Metrics.SessionResumed (no-op).
func (NopMetrics) SessionResumed(resumed bool) {}

// CompressionRatio implements Metrics.CompressionRatio (no-op).
func (NopMetrics) CompressionRatio(ratio float64) {}

// EventEmitted implements Metrics.EventEmitted (no-op).
func (NopMetrics) EventEmitted(state string) {}

// EventDropped implements Metrics.EventDropped (no-op).
func (NopMetrics) EventDropped() {}
