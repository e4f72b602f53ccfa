package observability

import (
	"context"
	"log/slog"
)

// SlogSink logs every Event as a structured slog record, mirroring the
// teacher's logger.go default callback.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger (or slog.Default if nil) as an EventSink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, e Event) {
	attrs := []any{
		"request_id", e.RequestID,
		"provider", e.Provider,
		"model", e.Model,
		"kind", e.Kind,
	}
	if e.LatencyMs > 0 {
		attrs = append(attrs, "latency_ms", e.LatencyMs)
	}
	if e.InputTokens > 0 || e.OutputTokens > 0 {
		attrs = append(attrs, "input_tokens", e.InputTokens, "output_tokens", e.OutputTokens)
	}
	if e.Cost != nil {
		attrs = append(attrs, "cost", *e.Cost)
	}

	switch e.Kind {
	case EventRequestFailed:
		attrs = append(attrs, "error", e.Err, "detail", e.Detail)
		s.logger.Error("llm request failed", attrs...)
	case EventCircuitEvent, EventFallback:
		attrs = append(attrs, "detail", e.Detail)
		s.logger.Warn("llm reliability event", attrs...)
	default:
		s.logger.Info("llm request event", attrs...)
	}
}
