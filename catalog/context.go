package catalog

import (
	"fmt"

	"github.com/llmcore/llmcore/request"
)

// ContextStrategy names a message-trimming policy ManageContext applies
// when the estimated token count exceeds the configured window.
type ContextStrategy string

const (
	// StrategyTruncateOldest drops the oldest non-system messages until
	// the estimate fits.
	StrategyTruncateOldest ContextStrategy = "truncate_oldest"

	// StrategySlidingWindow keeps system messages plus the most recent
	// WindowSize messages, then truncates further if still over budget.
	StrategySlidingWindow ContextStrategy = "sliding_window"

	// StrategySummarize replaces the trimmed span with a synthetic system
	// message noting how many turns were elided. A real summarizer would
	// call a model here; the core ships the stub.
	StrategySummarize ContextStrategy = "summarize"
)

// ContextOptions configures the ManageContext stage. A zero MaxTokens
// disables trimming entirely.
type ContextOptions struct {
	Strategy   ContextStrategy
	MaxTokens  int
	WindowSize int
}

// applyContextStrategy trims messages per opts, returning the canonical
// message list the rest of the pipeline (including the cache fingerprint)
// operates on.
func applyContextStrategy(count TokenCounter, model string, messages []request.Message, opts ContextOptions) []request.Message {
	if opts.MaxTokens <= 0 {
		return messages
	}
	if estimateMessages(count, model, messages) <= opts.MaxTokens {
		return messages
	}

	switch opts.Strategy {
	case StrategySlidingWindow:
		messages = slidingWindow(messages, opts.WindowSize)
		return truncateOldest(count, model, messages, opts.MaxTokens)
	case StrategySummarize:
		return summarizeStub(count, model, messages, opts.MaxTokens)
	default:
		return truncateOldest(count, model, messages, opts.MaxTokens)
	}
}

// truncateOldest drops the oldest non-system message until the estimate
// fits or only system messages and the final message remain.
func truncateOldest(count TokenCounter, model string, messages []request.Message, maxTokens int) []request.Message {
	out := append([]request.Message(nil), messages...)
	for estimateMessages(count, model, out) > maxTokens {
		i := oldestTrimmable(out)
		if i < 0 {
			return out
		}
		out = append(out[:i], out[i+1:]...)
	}
	return out
}

func slidingWindow(messages []request.Message, windowSize int) []request.Message {
	if windowSize <= 0 {
		windowSize = 10
	}

	var system, rest []request.Message
	for _, m := range messages {
		if m.Role == request.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if len(rest) > windowSize {
		rest = rest[len(rest)-windowSize:]
	}
	return append(system, rest...)
}

// summarizeStub behaves like truncateOldest but leaves a marker in place
// of the elided span so the model knows history was dropped.
func summarizeStub(count TokenCounter, model string, messages []request.Message, maxTokens int) []request.Message {
	trimmed := truncateOldest(count, model, messages, maxTokens)
	dropped := len(messages) - len(trimmed)
	if dropped <= 0 {
		return trimmed
	}

	marker := request.Message{
		Role:    request.RoleSystem,
		Content: request.TextContent(fmt.Sprintf("[%d earlier messages were summarized away to fit the context window]", dropped)),
	}

	// Insert the marker after any leading system messages.
	i := 0
	for i < len(trimmed) && trimmed[i].Role == request.RoleSystem {
		i++
	}
	out := make([]request.Message, 0, len(trimmed)+1)
	out = append(out, trimmed[:i]...)
	out = append(out, marker)
	out = append(out, trimmed[i:]...)
	return out
}

// oldestTrimmable finds the first message that isn't a system prompt and
// isn't the final message of the conversation.
func oldestTrimmable(messages []request.Message) int {
	for i := 0; i < len(messages)-1; i++ {
		if messages[i].Role != request.RoleSystem {
			return i
		}
	}
	return -1
}
