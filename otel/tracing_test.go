package otel

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/blockberries/wireberry/pkg/identity"
)

func testFingerprint() identity.Fingerprint {
	return identity.Fingerprint(sha256.Sum256([]byte("trace-peer")))
}

// newRecordingTracer returns a Tracer backed by an in-memory span
// recorder for assertions.
func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracer(provider), recorder
}

func TestNewTracer_NilProvider(t *testing.T) {
	tracer := NewTracer(nil)
	if tracer == nil {
		t.Fatal("NewTracer(nil) returned nil")
	}

	// Spans from the noop provider are valid but never recorded.
	_, span := tracer.StartConnect(context.Background(), testFingerprint(), "outbound")
	if span.IsRecording() {
		t.Error("noop tracer should not record spans")
	}
	span.End()
}

func TestStartConnect_Attributes(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	fp := testFingerprint()

	_, span := tracer.StartConnect(context.Background(), fp, "outbound")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]

	if got.Name() != SpanConnect {
		t.Errorf("span name = %q, want %q", got.Name(), SpanConnect)
	}
	if got.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", got.SpanKind())
	}

	attrs := map[string]string{}
	for _, kv := range got.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[AttrPeerFingerprint] != fp.String() {
		t.Errorf("peer fingerprint attribute = %q, want %q", attrs[AttrPeerFingerprint], fp.String())
	}
	if attrs[AttrConnectionDirection] != "outbound" {
		t.Errorf("direction attribute = %q, want outbound", attrs[AttrConnectionDirection])
	}
}

func TestStartSend_MessageAttributes(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	fp := testFingerprint()

	_, span := tracer.StartSend(context.Background(), fp, 3, 512)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]

	if got.Name() != SpanSend {
		t.Errorf("span name = %q, want %q", got.Name(), SpanSend)
	}

	attrs := map[string]int64{}
	for _, kv := range got.Attributes() {
		if kv.Value.Type() == attribute.INT64 {
			attrs[string(kv.Key)] = kv.Value.AsInt64()
		}
	}
	if attrs[AttrChannelTag] != 3 {
		t.Errorf("channel attribute = %d, want 3", attrs[AttrChannelTag])
	}
	if attrs[AttrMessageSize] != 512 {
		t.Errorf("size attribute = %d, want 512", attrs[AttrMessageSize])
	}
}

func TestSpanHierarchy(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	fp := testFingerprint()

	ctx, connectSpan := tracer.StartConnect(context.Background(), fp, "outbound")
	_, handshakeSpan := tracer.StartHandshake(ctx, fp)
	handshakeSpan.End()
	connectSpan.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	// The handshake span ends first and must be a child of connect.
	handshake, connect := spans[0], spans[1]
	if handshake.Name() != SpanHandshake || connect.Name() != SpanConnect {
		t.Fatalf("unexpected span order: %q, %q", handshake.Name(), connect.Name())
	}
	if handshake.Parent().SpanID() != connect.SpanContext().SpanID() {
		t.Error("handshake span is not a child of the connect span")
	}
}

func TestRecordHandshakeResult(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	fp := testFingerprint()

	// Success
	_, okSpan := tracer.StartHandshake(context.Background(), fp)
	tracer.RecordHandshakeResult(okSpan, "success", nil)
	okSpan.End()

	// Failure
	_, failSpan := tracer.StartHandshake(context.Background(), fp)
	tracer.RecordHandshakeResult(failSpan, "failure", errors.New("boom"))
	failSpan.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	if spans[0].Status().Code.String() != "Ok" {
		t.Errorf("success span status = %v, want Ok", spans[0].Status().Code)
	}
	if spans[1].Status().Code.String() != "Error" {
		t.Errorf("failure span status = %v, want Error", spans[1].Status().Code)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	fp := testFingerprint()

	_, span := tracer.StartDial(context.Background(), fp)
	tracer.EndSpan(span, errors.New("dial refused"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code.String() != "Error" {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestNewNopTracer(t *testing.T) {
	tracer := NewNopTracer()

	_, span := tracer.StartReceive(context.Background(), testFingerprint(), 1)
	if span.IsRecording() {
		t.Error("nop tracer should not record spans")
	}
	span.End()
}
