package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(spanRecorder),
	)
	otel.SetTracerProvider(provider)

	return spanRecorder
}

func attrs(span sdktrace.ReadOnlySpan) map[string]string {
	out := make(map[string]string)
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestStartDatabaseSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartDatabaseSpan(context.Background(), SpanOperationDBExec,
		WithDBSystem("postgresql"),
		WithDBStatement("DELETE FROM sessions"),
	)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "DB db.exec" {
		t.Errorf("expected span name 'DB db.exec', got %q", got.Name())
	}
	if got.SpanKind() != trace.SpanKindClient {
		t.Errorf("expected client span, got %v", got.SpanKind())
	}

	want := map[string]string{
		"db.operation": "db.exec",
		"db.system":    "postgresql",
		"db.statement": "DELETE FROM sessions",
	}
	a := attrs(got)
	for key, value := range want {
		if a[key] != value {
			t.Errorf("attribute %s: expected %q, got %q", key, value, a[key])
		}
	}
}

func TestRecordError(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	testErr := errors.New("test error")
	RecordError(span, testErr)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "exception" {
		t.Fatalf("expected one exception event, got %v", events)
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected span status Error, got %v", spans[0].Status().Code)
	}
	if spans[0].Status().Description != testErr.Error() {
		t.Errorf("expected description %q, got %q", testErr.Error(), spans[0].Status().Description)
	}
}

func TestRecordError_NilIsNoop(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	RecordError(span, nil)
	span.End()

	if got := recorder.Ended()[0]; len(got.Events()) != 0 || got.Status().Code != codes.Unset {
		t.Fatalf("expected untouched span, got events=%v status=%v", got.Events(), got.Status())
	}
}

func TestRecordSuccess(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	RecordSuccess(span)
	span.End()

	if got := recorder.Ended()[0].Status().Code; got != codes.Ok {
		t.Errorf("expected span status Ok, got %v", got)
	}
}
