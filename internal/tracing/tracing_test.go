package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"batchcursor/internal/config"
	"batchcursor/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer("test")
}

func TestInitDisabledByDefault(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.Tracing{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	if p.Enabled() {
		t.Fatal("expected tracing disabled without endpoint")
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
	if span.SpanContext().IsValid() {
		t.Fatal("expected no-op span context")
	}
}

func TestInitWithEndpoint(t *testing.T) {
	for _, protocol := range []string{"grpc", "http"} {
		p, err := tracing.Init(context.Background(), config.Tracing{
			Endpoint:    "localhost:4317",
			Protocol:    protocol,
			ServiceName: "test-service",
			SampleRate:  1.0,
			Insecure:    true,
		})
		if err != nil {
			t.Fatalf("Init(%s) error = %v", protocol, err)
		}
		if !p.Enabled() {
			t.Fatalf("expected %s provider enabled", protocol)
		}
		_ = p.Shutdown(context.Background())
	}
}

func TestInitRejectsBadInput(t *testing.T) {
	if _, err := tracing.Init(context.Background(), config.Tracing{Endpoint: "x:1", Protocol: "udp", SampleRate: 1}); err == nil {
		t.Fatal("expected unsupported protocol error")
	}
	if _, err := tracing.Init(context.Background(), config.Tracing{Endpoint: "x:1", Protocol: "grpc", SampleRate: 2}); err == nil {
		t.Fatal("expected sample rate error")
	}
}

func TestEndSpanRecordsStatus(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, ok := tracing.StartSpan(context.Background(), tracer, "ok-span", tracing.AttrCollection.String("/c"))
	tracing.EndSpan(ok, nil, tracing.AttrOffset.Int(2))
	_, bad := tracing.StartClientSpan(context.Background(), tracer, "bad-span")
	tracing.EndSpan(bad, errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", spans[0].Status)
	}
	if spans[1].Status.Code != codes.Error || spans[1].SpanKind != trace.SpanKindClient {
		t.Fatalf("unexpected failing span %+v", spans[1])
	}
}

func TestHeaderPropagationRoundTrip(t *testing.T) {
	_, tracer := setupTestTracer(t)
	ctx, span := tracer.Start(context.Background(), "parent")
	defer span.End()

	headers := http.Header{}
	tracing.InjectHTTPHeaders(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	extracted := tracing.ExtractHTTPHeaders(context.Background(), headers)
	if got := trace.SpanContextFromContext(extracted).TraceID(); got != span.SpanContext().TraceID() {
		t.Fatalf("trace id mismatch: %s vs %s", got, span.SpanContext().TraceID())
	}
}
