// Package observability turns pipeline and reliability-substrate
// telemetry into pluggable sinks: structured logs, Prometheus counters,
// OTel spans, and batched S3 archival, grounded on the teacher's
// internal/observability package. None of these sinks are hard-wired;
// a catalog is built with whichever EventSinks the caller wants.
package observability

import "context"

// EventKind is the closed set of lifecycle events a catalog pipeline run
// emits to every registered EventSink.
type EventKind string

const (
	EventRequestStarted   EventKind = "request_started"
	EventRequestCompleted EventKind = "request_completed"
	EventRequestFailed    EventKind = "request_failed"
	EventCacheHit         EventKind = "cache_hit"
	EventCacheMiss        EventKind = "cache_miss"
	EventCircuitEvent     EventKind = "circuit_event"
	EventFallback         EventKind = "fallback"
)

// Event is one telemetry emission describing a completed (or in-flight)
// pipeline stage.
type Event struct {
	Kind         EventKind
	RequestID    string
	Provider     string
	Model        string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	Cost         *float64
	CacheHit     bool
	Err          error
	Detail       string
}

// EventSink receives telemetry. Implementations must not block the
// pipeline meaningfully; slow sinks should buffer internally.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// MultiSink fans one Event out to every configured sink.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink composes sinks into one EventSink.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, e)
	}
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(ctx context.Context, e Event)

func (f EventSinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
