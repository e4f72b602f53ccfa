package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this module's spans in an OTel backend.
const TracerName = "llmcore"

// TracingConfig configures the OTLP exporter backing span export.
type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

// TracerProvider wraps the configured (or no-op) tracer.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing builds a TracerProvider. When cfg.Enabled is false it
// returns a no-op tracer so callers never need a nil check.
func InitTracing(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

// StartStage opens a span for one pipeline stage invocation.
func (tp *TracerProvider) StartStage(ctx context.Context, plugName, provider, model string) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, "plug."+plugName, trace.WithAttributes(
		attribute.String("gen_ai.system", provider),
		attribute.String("gen_ai.request.model", model),
	))
}

// Shutdown flushes and stops the exporter. A no-op tracer has nothing to
// flush.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
