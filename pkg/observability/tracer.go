package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider with the handful of spans
// the orchestrator needs: one per workflow iteration, one per LLM call,
// one per tool call, one per sub-agent run, one per checkpoint write.
type Tracer struct {
	provider      *sdktrace.TracerProvider
	tracer        trace.Tracer
	debugExporter *DebugExporter
}

// TracerOption configures a Tracer at construction time.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter    *DebugExporter
	capturePayloads  bool
	extraSpanWriters []io.Writer
}

// WithDebugExporter attaches an in-memory span exporter for inspection.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = d }
}

// WithCapturePayloads toggles capturing full request/response payloads in
// span attributes (verbose; intended for debugging only).
func WithCapturePayloads(capture bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = capture }
}

// NewTracer builds a Tracer from configuration. Supported exporters are
// "otlp" (ships spans to a collector over gRPC, for production use),
// "stdout" (writes spans as JSON to stdout, useful for local development)
// and "none"/"" (spans are generated and sampled but never exported,
// only visible through the debug exporter).
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	options := &tracerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	var tpOpts []sdktrace.TracerProviderOption
	tpOpts = append(tpOpts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)

	switch cfg.Exporter {
	case "otlp":
		exporter, err := newOTLPExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("observability: build otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: build stdout exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	case "", "none":
		// spans are sampled and may be captured by the debug exporter, but
		// never shipped anywhere.
	default:
		return nil, fmt.Errorf("observability: unsupported exporter %q (supported: otlp, stdout, none)", cfg.Exporter)
	}

	if options.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(options.debugExporter))
	}

	provider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider:      provider,
		tracer:        provider.Tracer(DefaultServiceName),
		debugExporter: options.debugExporter,
	}, nil
}

// newOTLPExporter dials cfg.Endpoint over gRPC and returns a span exporter
// that ships batches to an OpenTelemetry collector. Dialing is
// non-blocking: a down collector fails exports later, not construction.
func newOTLPExporter(ctx context.Context, cfg *TracingConfig) (*otlptrace.Exporter, error) {
	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.IsInsecure() {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	client := otlptracegrpc.NewClient(grpcOpts...)
	return otlptrace.New(ctx, client)
}

// Start begins a span with the given name, returning the derived context
// and the span. Callers must call span.End().
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// DebugExporter returns the attached in-memory exporter, or nil.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
