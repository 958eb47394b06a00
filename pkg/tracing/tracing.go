// Package tracing wires the W3C traceparent/tracestate propagation
// domain.InvocationContext carries across the Gateway's HTTP leg and the
// RPC fabric's gRPC leg into an actual OTLP exporter, so a completed
// invocation's span chain (pkg/domain's Span nodes) shows up in a tracing
// backend instead of only ever being logged. Grounded on
// r3e-network-service_layer's pkg/tracing, the only pack repo wiring
// go.opentelemetry.io/otel's SDK end to end; this module already depends
// on the otlptracehttp exporter rather than that repo's otlptracegrpc one,
// since the RPC fabric's own transport is gRPC and a second gRPC exporter
// pool competing for connections isn't worth it.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/fabrik/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls the OTLP exporter a fabrik process starts.
type Config struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// NewProvider builds an OTLP/HTTP tracer provider per cfg and returns a
// shutdown func to flush and close it. When cfg.Enabled is false, it
// returns a provider that drops every span (noop.NewTracerProvider) so
// callers never need to branch on whether tracing is configured.
func NewProvider(ctx context.Context, cfg Config) (oteltrace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		shutdown := func(context.Context) error { return nil }
		return noop.NewTracerProvider(), shutdown, nil
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, nil, fmt.Errorf("tracing: otlp endpoint required when enabled")
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: create otlp exporter: %w", err)
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fabrik"
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return provider, provider.Shutdown, nil
}

// Export replays every Span an InvocationContext accumulated as a chain
// of real spans against provider's tracer, so a single completed
// invocation's Gateway-to-worker hop shows up as one trace in the
// exporter's backend rather than only as log lines.
func Export(ctx context.Context, provider oteltrace.TracerProvider, invCtx domain.InvocationContext) {
	if provider == nil || len(invCtx.Spans) == 0 {
		return
	}
	tracer := provider.Tracer("fabrik")
	for _, span := range invCtx.Spans {
		attrs := make([]attribute.KeyValue, 0, len(span.Attributes)+1)
		attrs = append(attrs, attribute.String("fabrik.trace_id", span.TraceID))
		for k, v := range span.Attributes {
			attrs = append(attrs, attribute.String(k, v))
		}
		_, otelSpan := tracer.Start(ctx, span.Name, oteltrace.WithTimestamp(span.StartedAt), oteltrace.WithAttributes(attrs...))
		otelSpan.End()
	}
}

// FormatTraceParent renders a W3C traceparent header value for traceID/
// spanID, using the "sampled" flag unconditionally (fabrik's propagation
// carries no sampling decision of its own).
func FormatTraceParent(traceID, spanID string) string {
	return fmt.Sprintf("00-%s-%s-01", normalizeTraceID(traceID), normalizeSpanID(spanID))
}

// ParseTraceParent extracts the trace ID from an inbound W3C traceparent
// header, per https://www.w3.org/TR/trace-context/#traceparent-header,
// by returning its second dash-separated field. ok is false only when
// header has fewer than four dash-separated fields; the trace ID is
// returned as is, without checking its length or hex encoding.
func ParseTraceParent(header string) (traceID string, ok bool) {
	parts := strings.Split(header, "-")
	if len(parts) < 4 {
		return "", false
	}
	return parts[1], true
}

func normalizeTraceID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) == 32 {
		return id
	}
	padded := (id + strings.Repeat("0", 32))[:32]
	return padded
}

func normalizeSpanID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) == 16 {
		return id
	}
	padded := (id + strings.Repeat("0", 16))[:16]
	return padded
}
