// Package tracing provides OpenTelemetry tracing for the tooldock MCP server.
// Spans cover discovery passes, unit loads and tool calls.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for every span the server creates.
const TracerName = "tooldock-mcp-server"

// Span names.
const (
	SpanDiscoveryPass = "discovery.pass"
	SpanDiscoveryUnit = "discovery.unit"
	SpanToolPrefix    = "mcp.tool."
)

// Config holds tracing configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool

	// Endpoint is the OTLP/HTTP collector address. Empty writes spans to
	// Writer instead.
	Endpoint   string
	SampleRate float64

	// Writer receives pretty-printed spans when Endpoint is empty. Stdout
	// carries the MCP protocol, so the default is stderr.
	Writer io.Writer
}

// DefaultConfig returns a disabled configuration that samples everything
// once enabled.
func DefaultConfig() Config {
	return Config{
		ServiceName: TracerName,
		Environment: "development",
		SampleRate:  1.0,
		Writer:      os.Stderr,
	}
}

// Setup installs a global tracer provider for cfg and returns its shutdown
// function. A disabled config installs nothing.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	// Schemaless service attributes merge with the SDK's own resource
	// whatever semconv version the SDK was built against.
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint != "" {
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(w))
}

// Sampler maps a sample rate to a sampler: 1 or more samples everything,
// 0 or less samples nothing.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the server's tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span named name.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartUnitSpan starts the span covering one unit of a discovery pass.
func StartUnitSpan(ctx context.Context, unit string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDiscoveryUnit, trace.WithAttributes(attribute.String("tooldock.unit", unit)))
}

// AddToolAttributes tags a tool call span with the tool and where it came from.
func AddToolAttributes(span trace.Span, toolName, unit, source string) {
	span.SetAttributes(
		attribute.String("mcp.tool.name", toolName),
		attribute.String("tooldock.unit", unit),
		attribute.String("tooldock.source", source),
	)
}

// AddDiscoveryAttributes adds the outcome of a discovery pass to a span.
func AddDiscoveryAttributes(span trace.Span, generation uint64, registered, errs int, status string) {
	span.SetAttributes(
		attribute.Int64("tooldock.registry.generation", int64(generation)),
		attribute.Int("tooldock.discovery.registered", registered),
		attribute.Int("tooldock.discovery.errors", errs),
		attribute.String("tooldock.discovery.status", status),
	)
}

// RecordError records err on span, if any.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}
