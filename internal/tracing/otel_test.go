package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	ctx := NewExecutionContext(context.Background(), "m-1", "devops")
	ctx, span := StartSpan(ctx, "opsframe.test", "unit", attribute.String("tool.name", "hris_lookup"))
	span.End()

	if GetTraceID(ctx) == "" {
		t.Fatal("Trace ID missing after StartSpan")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs["tool.name"] != "hris_lookup" {
		t.Errorf("Expected tool.name attribute, got %v", attrs)
	}
	if attrs["execution.id"] != GetExecutionID(ctx) {
		t.Errorf("Expected execution.id %s, got %s", GetExecutionID(ctx), attrs["execution.id"])
	}
}

func TestStartSpanAdoptsTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx, span := StartSpan(context.Background(), "opsframe.test", "bare")
	defer span.End()

	if GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Error("Trace ID should be adopted from the span")
	}
}

func TestShutdownWithoutInit(t *testing.T) {
	if provider != nil {
		t.Skip("provider already initialised")
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown without provider returned %v", err)
	}
}
