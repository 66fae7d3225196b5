// Package otel provides OpenTelemetry tracing integration for Wireberry.
//
// This package enables distributed tracing of Wireberry operations using
// OpenTelemetry. Traces provide visibility into connection lifecycle,
// handshake operations, and message flow.
//
// # Span Hierarchy
//
// The following spans are created during normal operation:
//
//	wireberry.connect
//	├── wireberry.dial                 (outbound connections)
//	├── wireberry.handshake
//	│   ├── wireberry.verify_peer
//	│   └── wireberry.channel_setup
//	└── wireberry.established
//
//	wireberry.send
//	├── wireberry.encode
//	└── wireberry.write
//
//	wireberry.receive
//	├── wireberry.read
//	└── wireberry.decode
//
// # Attributes
//
// Common span attributes include:
//   - peer.fingerprint: The remote peer's key fingerprint
//   - channel.tag: The channel tag for message operations
//   - message.size: Size of sent/received messages
//   - connection.direction: "inbound" or "outbound"
//   - handshake.result: "success", "failure", or "timeout"
//
// # Example Usage
//
//	import (
//	    "github.com/blockberries/wireberry"
//	    wireberryotel "github.com/blockberries/wireberry/otel"
//	    "go.opentelemetry.io/otel"
//	)
//
//	func main() {
//	    tp := otel.GetTracerProvider()
//	    tracer := wireberryotel.NewTracer(tp)
//
//	    ctx, span := tracer.StartConnect(context.Background(), peerFP, "outbound")
//	    defer span.End()
//	    // ...
//	}
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blockberries/wireberry/pkg/identity"
)

const (
	// TracerName is the name used for the OpenTelemetry tracer.
	TracerName = "github.com/blockberries/wireberry"

	// Span names
	SpanConnect      = "wireberry.connect"
	SpanDial         = "wireberry.dial"
	SpanHandshake    = "wireberry.handshake"
	SpanVerifyPeer   = "wireberry.verify_peer"
	SpanChannelSetup = "wireberry.channel_setup"
	SpanEstablished  = "wireberry.established"
	SpanSend         = "wireberry.send"
	SpanEncode       = "wireberry.encode"
	SpanWrite        = "wireberry.write"
	SpanReceive      = "wireberry.receive"
	SpanRead         = "wireberry.read"
	SpanDecode       = "wireberry.decode"
	SpanDisconnect   = "wireberry.disconnect"

	// Attribute keys
	AttrPeerFingerprint     = "peer.fingerprint"
	AttrChannelTag          = "channel.tag"
	AttrMessageSize         = "message.size"
	AttrConnectionDirection = "connection.direction"
	AttrHandshakeResult     = "handshake.result"
	AttrErrorMessage        = "error.message"
)

// Tracer provides OpenTelemetry tracing for Wireberry operations.
// It wraps an OpenTelemetry TracerProvider and creates spans for
// connection lifecycle, handshakes, and message operations.
//
// Tracer is safe for concurrent use.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the given TracerProvider.
// If provider is nil, a no-op tracer is used.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

// StartConnect starts a span for a connection attempt.
func (t *Tracer) StartConnect(ctx context.Context, peer identity.Fingerprint, direction string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanConnect,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
			attribute.String(AttrConnectionDirection, direction),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartDial starts a span for dialing a peer.
func (t *Tracer) StartDial(ctx context.Context, peer identity.Fingerprint) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDial,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
		),
	)
}

// StartHandshake starts a span for a handshake operation.
func (t *Tracer) StartHandshake(ctx context.Context, peer identity.Fingerprint) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanHandshake,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
		),
	)
}

// StartVerifyPeer starts a span for peer certificate verification.
func (t *Tracer) StartVerifyPeer(ctx context.Context, peer identity.Fingerprint) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanVerifyPeer,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
		),
	)
}

// StartChannelSetup starts a span for channel setup after a handshake.
func (t *Tracer) StartChannelSetup(ctx context.Context, peer identity.Fingerprint, channel uint8) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanChannelSetup,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
			attribute.Int(AttrChannelTag, int(channel)),
		),
	)
}

// StartSend starts a span for sending a message.
func (t *Tracer) StartSend(ctx context.Context, peer identity.Fingerprint, channel uint8, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSend,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
			attribute.Int(AttrChannelTag, int(channel)),
			attribute.Int(AttrMessageSize, size),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartEncode starts a span for frame encoding and compression.
func (t *Tracer) StartEncode(ctx context.Context, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanEncode,
		trace.WithAttributes(
			attribute.Int(AttrMessageSize, size),
		),
	)
}

// StartReceive starts a span for receiving a message.
func (t *Tracer) StartReceive(ctx context.Context, peer identity.Fingerprint, channel uint8) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanReceive,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
			attribute.Int(AttrChannelTag, int(channel)),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// StartDecode starts a span for frame decoding and decompression.
func (t *Tracer) StartDecode(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDecode)
}

// StartDisconnect starts a span for disconnection.
func (t *Tracer) StartDisconnect(ctx context.Context, peer identity.Fingerprint) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDisconnect,
		trace.WithAttributes(
			attribute.String(AttrPeerFingerprint, peer.String()),
		),
	)
}

// RecordHandshakeResult records the result of a handshake on the given span.
func (t *Tracer) RecordHandshakeResult(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String(AttrHandshakeResult, result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// RecordError records an error on the given span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// EndSpan ends a span, optionally recording an error.
func (t *Tracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NopTracer is a no-op tracer that does nothing.
// It is used when tracing is disabled.
// NopTracer wraps the real Tracer with a noop provider.
type NopTracer struct {
	*Tracer
}

// NewNopTracer creates a new no-op tracer.
func NewNopTracer() *NopTracer {
	return &NopTracer{
		Tracer: NewTracer(nil),
	}
}
