package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmcore"

// PrometheusSink records completed requests (count, latency, tokens,
// cost), failed requests, and cache hits/misses by provider/model,
// grounded on the teacher's internal/metrics counter layout. Other event
// kinds are not recorded.
type PrometheusSink struct {
	requests   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	cacheHits  *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	costTotal  *prometheus.CounterVec
	tokensUsed *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the default registry
// on every call; constructing a second sink in the same process panics on
// the duplicate registration.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total", Help: "Total completed LLM requests.",
		}, []string{"provider", "model"}),
		failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_failed_total", Help: "Total failed LLM requests.",
		}, []string{"provider", "model"}),
		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total", Help: "Cache lookups by outcome.",
		}, []string{"provider", "model", "hit"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_latency_seconds", Help: "Request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		costTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cost_dollars_total", Help: "Estimated cumulative cost in dollars.",
		}, []string{"provider", "model"}),
		tokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tokens_total", Help: "Tokens consumed by direction.",
		}, []string{"provider", "model", "direction"}),
	}
}

func (p *PrometheusSink) Emit(ctx context.Context, e Event) {
	switch e.Kind {
	case EventRequestCompleted:
		p.requests.WithLabelValues(e.Provider, e.Model).Inc()
		if e.LatencyMs > 0 {
			p.latency.WithLabelValues(e.Provider, e.Model).Observe(float64(e.LatencyMs) / 1000)
		}
		if e.InputTokens > 0 {
			p.tokensUsed.WithLabelValues(e.Provider, e.Model, "input").Add(float64(e.InputTokens))
		}
		if e.OutputTokens > 0 {
			p.tokensUsed.WithLabelValues(e.Provider, e.Model, "output").Add(float64(e.OutputTokens))
		}
		if e.Cost != nil {
			p.costTotal.WithLabelValues(e.Provider, e.Model).Add(*e.Cost)
		}
	case EventRequestFailed:
		p.failures.WithLabelValues(e.Provider, e.Model).Inc()
	case EventCacheHit:
		p.cacheHits.WithLabelValues(e.Provider, e.Model, "true").Inc()
	case EventCacheMiss:
		p.cacheHits.WithLabelValues(e.Provider, e.Model, "false").Inc()
	}
}
