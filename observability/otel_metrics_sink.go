package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelMetricsSink mirrors the Prometheus sink over OTel instruments for
// OTLP-only deployments.
type OTelMetricsSink struct {
	requests  metric.Int64Counter
	failures  metric.Int64Counter
	cacheHits metric.Int64Counter
	latency   metric.Float64Histogram
	tokens    metric.Int64Counter
	cost      metric.Float64Counter
}

// NewOTelMetricsSink creates the instruments on provider's meter, or on
// the globally registered one when provider is nil.
func NewOTelMetricsSink(provider *sdkmetric.MeterProvider) (*OTelMetricsSink, error) {
	var meter metric.Meter
	if provider != nil {
		meter = provider.Meter(TracerName)
	} else {
		meter = otel.Meter(TracerName)
	}

	s := &OTelMetricsSink{}
	var err error
	if s.requests, err = meter.Int64Counter("llmcore.requests",
		metric.WithDescription("Total completed LLM requests.")); err != nil {
		return nil, err
	}
	if s.failures, err = meter.Int64Counter("llmcore.requests.failed",
		metric.WithDescription("Total failed LLM requests.")); err != nil {
		return nil, err
	}
	if s.cacheHits, err = meter.Int64Counter("llmcore.cache.lookups",
		metric.WithDescription("Cache lookups by outcome.")); err != nil {
		return nil, err
	}
	if s.latency, err = meter.Float64Histogram("llmcore.request.latency",
		metric.WithDescription("Request latency in seconds."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if s.tokens, err = meter.Int64Counter("llmcore.tokens",
		metric.WithDescription("Tokens consumed by direction.")); err != nil {
		return nil, err
	}
	if s.cost, err = meter.Float64Counter("llmcore.cost",
		metric.WithDescription("Estimated cumulative cost in dollars."), metric.WithUnit("{usd}")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OTelMetricsSink) Emit(ctx context.Context, e Event) {
	attrs := metric.WithAttributes(
		attribute.String("gen_ai.system", e.Provider),
		attribute.String("gen_ai.request.model", e.Model),
	)

	switch e.Kind {
	case EventRequestCompleted:
		s.requests.Add(ctx, 1, attrs)
		if e.LatencyMs > 0 {
			s.latency.Record(ctx, float64(e.LatencyMs)/1000, attrs)
		}
		if e.InputTokens > 0 {
			s.tokens.Add(ctx, int64(e.InputTokens), attrs,
				metric.WithAttributes(attribute.String("direction", "input")))
		}
		if e.OutputTokens > 0 {
			s.tokens.Add(ctx, int64(e.OutputTokens), attrs,
				metric.WithAttributes(attribute.String("direction", "output")))
		}
		if e.Cost != nil {
			s.cost.Add(ctx, *e.Cost, attrs)
		}
	case EventRequestFailed:
		s.failures.Add(ctx, 1, attrs)
	case EventCacheHit:
		s.cacheHits.Add(ctx, 1, attrs, metric.WithAttributes(attribute.Bool("hit", true)))
	case EventCacheMiss:
		s.cacheHits.Add(ctx, 1, attrs, metric.WithAttributes(attribute.Bool("hit", false)))
	}
}
