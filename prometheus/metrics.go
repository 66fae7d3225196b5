// Package prometheus provides a Prometheus implementation of the wireberry.Metrics interface.
//
// This package enables integration with Prometheus monitoring systems. All metrics
// are registered with the default Prometheus registry and follow Prometheus naming
// conventions.
//
// # Metric Names
//
// All metrics use the configured namespace prefix (default: "wireberry"). The full
// metric name follows the pattern: {namespace}_{name}
//
// # Counters
//
//	wireberry_connections_opened_total{direction="inbound|outbound"}
//	wireberry_connections_closed_total{direction="inbound|outbound"}
//	wireberry_connection_attempts_total{result="success|failure"}
//	wireberry_handshake_results_total{result="success|failure|timeout"}
//	wireberry_messages_sent_total{channel="<tag>"}
//	wireberry_messages_received_total{channel="<tag>"}
//	wireberry_bytes_sent_total{channel="<tag>"}
//	wireberry_bytes_received_total{channel="<tag>"}
//	wireberry_frames_reordered_total{channel="<tag>"}
//	wireberry_frames_deduplicated_total{channel="<tag>"}
//	wireberry_packets_filtered_total
//	wireberry_session_resumptions_total{resumed="true|false"}
//	wireberry_events_emitted_total{state="<state>"}
//	wireberry_events_dropped_total
//
// # Histograms
//
//	wireberry_handshake_duration_seconds
//	wireberry_compression_ratio
//
// # Example Usage
//
//	import (
//	    "github.com/blockberries/wireberry"
//	    prommetrics "github.com/blockberries/wireberry/prometheus"
//	    "github.com/prometheus/client_golang/prometheus/promhttp"
//	)
//
//	func main() {
//	    metrics := prommetrics.NewMetrics("myapp")
//
//	    cfg := wireberry.NewConfig(key, addrs, channels,
//	        wireberry.WithMetrics(metrics),
//	    )
//
//	    endpoint, err := wireberry.New(cfg)
//	    // ...
//
//	    // Expose metrics endpoint
//	    http.Handle("/metrics", promhttp.Handler())
//	    http.ListenAndServe(":9090", nil)
//	}
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blockberries/wireberry"
)

// DefaultNamespace is the default namespace for all metrics.
const DefaultNamespace = "wireberry"

// Metrics implements the wireberry.Metrics interface using Prometheus metrics.
// All metrics are registered with the default Prometheus registry.
//
// Metrics is safe for concurrent use.
type Metrics struct {
	// Connection metrics
	connectionsOpened  *prometheus.CounterVec
	connectionsClosed  *prometheus.CounterVec
	connectionAttempts *prometheus.CounterVec
	handshakeDuration  prometheus.Histogram
	handshakeResults   *prometheus.CounterVec

	// Channel metrics
	messagesSent       *prometheus.CounterVec
	messagesReceived   *prometheus.CounterVec
	bytesSent          *prometheus.CounterVec
	bytesReceived      *prometheus.CounterVec
	framesReordered    *prometheus.CounterVec
	framesDeduplicated *prometheus.CounterVec

	// Transport metrics
	packetsFiltered    prometheus.Counter
	sessionResumptions *prometheus.CounterVec
	compressionRatio   prometheus.Histogram

	// Event metrics
	eventsEmitted *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

// Ensure Metrics implements wireberry.Metrics.
var _ wireberry.Metrics = (*Metrics)(nil)

// NewMetrics creates a new Prometheus metrics collector with the given namespace.
// If namespace is empty, DefaultNamespace ("wireberry") is used.
//
// All metrics are automatically registered with the default Prometheus registry.
// If registration fails (e.g., metrics already registered), this function will panic.
// To avoid panics, use NewMetricsWithRegisterer with a custom registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Prometheus metrics collector with the given
// namespace and registerer. This allows using a custom registry for testing or
// to avoid conflicts with other metrics.
//
// If namespace is empty, DefaultNamespace ("wireberry") is used.
// If registerer is nil, metrics will not be registered automatically.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		connectionsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_opened_total",
				Help:      "Total number of connections opened",
			},
			[]string{"direction"},
		),
		connectionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_closed_total",
				Help:      "Total number of connections closed",
			},
			[]string{"direction"},
		),
		connectionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_attempts_total",
				Help:      "Total number of connection attempts by result",
			},
			[]string{"result"},
		),
		handshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handshake_duration_seconds",
				Help:      "Histogram of successful handshake durations",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		handshakeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshake_results_total",
				Help:      "Total number of handshake results by outcome",
			},
			[]string{"result"},
		),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent per channel",
			},
			[]string{"channel"},
		),
		messagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Total number of messages received per channel",
			},
			[]string{"channel"},
		),
		bytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Total bytes sent per channel",
			},
			[]string{"channel"},
		),
		bytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_received_total",
				Help:      "Total bytes received per channel",
			},
			[]string{"channel"},
		),
		framesReordered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_reordered_total",
				Help:      "Total frames held for reordering per channel",
			},
			[]string{"channel"},
		),
		framesDeduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_deduplicated_total",
				Help:      "Total duplicate frames discarded per channel",
			},
			[]string{"channel"},
		),
		packetsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_filtered_total",
			Help:      "Total inbound packets dropped by the ban filter",
		}),
		sessionResumptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_resumptions_total",
				Help:      "Total dials by session resumption status",
			},
			[]string{"resumed"},
		),
		compressionRatio: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compression_ratio",
				Help:      "Histogram of compressed-to-original payload size ratios",
				Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1},
			},
		),
		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_emitted_total",
				Help:      "Total number of events emitted by state",
			},
			[]string{"state"},
		),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to buffer full",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.connectionsOpened,
			m.connectionsClosed,
			m.connectionAttempts,
			m.handshakeDuration,
			m.handshakeResults,
			m.messagesSent,
			m.messagesReceived,
			m.bytesSent,
			m.bytesReceived,
			m.framesReordered,
			m.framesDeduplicated,
			m.packetsFiltered,
			m.sessionResumptions,
			m.compressionRatio,
			m.eventsEmitted,
			m.eventsDropped,
		)
	}

	return m
}

// ConnectionOpened implements wireberry.Metrics.
func (m *Metrics) ConnectionOpened(direction string) {
	m.connectionsOpened.WithLabelValues(direction).Inc()
}

// ConnectionClosed implements wireberry.Metrics.
func (m *Metrics) ConnectionClosed(direction string) {
	m.connectionsClosed.WithLabelValues(direction).Inc()
}

// ConnectionAttempt implements wireberry.Metrics.
func (m *Metrics) ConnectionAttempt(result string) {
	m.connectionAttempts.WithLabelValues(result).Inc()
}

// HandshakeDuration implements wireberry.Metrics.
func (m *Metrics) HandshakeDuration(seconds float64) {
	m.handshakeDuration.Observe(seconds)
}

// HandshakeResult implements wireberry.Metrics.
func (m *Metrics) HandshakeResult(result string) {
	m.handshakeResults.WithLabelValues(result).Inc()
}

// MessageSent implements wireberry.Metrics.
func (m *Metrics) MessageSent(channel string, bytes int) {
	m.messagesSent.WithLabelValues(channel).Inc()
	m.bytesSent.WithLabelValues(channel).Add(float64(bytes))
}

// MessageReceived implements wireberry.Metrics.
func (m *Metrics) MessageReceived(channel string, bytes int) {
	m.messagesReceived.WithLabelValues(channel).Inc()
	m.bytesReceived.WithLabelValues(channel).Add(float64(bytes))
}

// FramesReordered implements wireberry.Metrics.
func (m *Metrics) FramesReordered(channel string) {
	m.framesReordered.WithLabelValues(channel).Inc()
}

// FramesDeduplicated implements wireberry.Metrics.
func (m *Metrics) FramesDeduplicated(channel string) {
	m.framesDeduplicated.WithLabelValues(channel).Inc()
}

// PacketFiltered implements wireberry.Metrics.
func (m *Metrics) PacketFiltered() {
	m.packetsFiltered.Inc()
}

// SessionResumed implements wireberry.Metrics.
func (m *Metrics) SessionResumed(resumed bool) {
	m.sessionResumptions.WithLabelValues(strconv.FormatBool(resumed)).Inc()
}

// CompressionRatio implements wireberry.Metrics.
func (m *Metrics) CompressionRatio(ratio float64) {
	m.compressionRatio.Observe(ratio)
}

// EventEmitted implements wireberry.Metrics.
func (m *Metrics) EventEmitted(state string) {
	m.eventsEmitted.WithLabelValues(state).Inc()
}

// EventDropped implements wireberry.Metrics.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}
