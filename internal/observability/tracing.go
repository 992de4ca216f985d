// Package observability provides OpenTelemetry tracing for builds.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const (
	// TracerName is the name used for the modwrap tracer.
	TracerName = "github.com/efebarandurmaz/modwrap"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "modwrap")
	ServiceName string

	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64

	// Insecure disables TLS on the OTLP connection.
	Insecure bool
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "modwrap",
		ServiceVersion: "0.1.0",
		SampleRate:     1.0,
		Insecure:       true,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes pending spans and shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under the modwrap.span.kind attribute.
const (
	SpanKindBuild  = "build"
	SpanKindEntry  = "entry"
	SpanKindModule = "module"
	SpanKindGraph  = "graph"
)

// StartBuildSpan starts the root span of a build over entryCount files.
func StartBuildSpan(ctx context.Context, entryCount int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "build",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("modwrap.span.kind", SpanKindBuild),
			attribute.Int("build.entry_count", entryCount),
		),
	)
}

// RecordBuildResult records the outcome of a build on its span.
func RecordBuildResult(span trace.Span, outputs, failures, warnings int) {
	span.SetAttributes(
		attribute.Int("build.output_count", outputs),
		attribute.Int("build.failure_count", failures),
		attribute.Int("build.warning_count", warnings),
	)
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d files failed", failures))
	}
}

// StartEntrySpan starts a span for processing one entry file.
func StartEntrySpan(ctx context.Context, path string, combine bool) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "entry",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("modwrap.span.kind", SpanKindEntry),
			attribute.String("entry.path", path),
			attribute.Bool("entry.combine", combine),
		),
	)
}

// RecordEntryResult records how many modules an entry pulled in.
func RecordEntryResult(span trace.Span, modules, cycles, bytes int) {
	span.SetAttributes(
		attribute.Int("entry.module_count", modules),
		attribute.Int("entry.cycle_count", cycles),
		attribute.Int("entry.output_bytes", bytes),
	)
}

// StartModuleSpan starts a span for packaging one file.
func StartModuleSpan(ctx context.Context, path, kind string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "module",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("modwrap.span.kind", SpanKindModule),
			attribute.String("module.path", path),
			attribute.String("module.packager", kind),
		),
	)
}

// StartGraphSpan starts a span for a dependency graph export.
func StartGraphSpan(ctx context.Context, entry, format string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "graph."+format,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("modwrap.span.kind", SpanKindGraph),
			attribute.String("graph.entry", entry),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
