package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmcore/llmcore/request"
)

// charCounter makes budgets predictable: one token per character, plus
// the per-message framing constant.
func charCounter(_, text string) int { return len(text) }

func msg(role request.Role, text string) request.Message {
	return request.Message{Role: role, Content: request.TextContent(text)}
}

func conversation() []request.Message {
	return []request.Message{
		msg(request.RoleSystem, "be terse"),
		msg(request.RoleUser, "aaaaaaaaaa"),
		msg(request.RoleAssistant, "bbbbbbbbbb"),
		msg(request.RoleUser, "cccccccccc"),
		msg(request.RoleAssistant, "dddddddddd"),
		msg(request.RoleUser, "final question"),
	}
}

func TestApplyContextStrategy_NoopUnderBudget(t *testing.T) {
	msgs := conversation()
	out := applyContextStrategy(charCounter, "m", msgs, ContextOptions{Strategy: StrategyTruncateOldest, MaxTokens: 10_000})
	assert.Equal(t, msgs, out)
}

func TestApplyContextStrategy_TruncateOldestDropsFromFront(t *testing.T) {
	msgs := conversation()
	out := applyContextStrategy(charCounter, "m", msgs, ContextOptions{Strategy: StrategyTruncateOldest, MaxTokens: 45})

	require.Less(t, len(out), len(msgs))
	// The system prompt and the final message always survive.
	assert.Equal(t, request.RoleSystem, out[0].Role)
	assert.Equal(t, "final question", out[len(out)-1].Content.Text)
	assert.LessOrEqual(t, estimateMessages(charCounter, "m", out), 45)
}

func TestApplyContextStrategy_SlidingWindowKeepsSystemAndTail(t *testing.T) {
	msgs := conversation()
	out := applyContextStrategy(charCounter, "m", msgs, ContextOptions{Strategy: StrategySlidingWindow, MaxTokens: 60, WindowSize: 2})

	require.Len(t, out, 3)
	assert.Equal(t, request.RoleSystem, out[0].Role)
	assert.Equal(t, "dddddddddd", out[1].Content.Text)
	assert.Equal(t, "final question", out[2].Content.Text)
}

func TestApplyContextStrategy_SummarizeLeavesMarker(t *testing.T) {
	msgs := conversation()
	out := applyContextStrategy(charCounter, "m", msgs, ContextOptions{Strategy: StrategySummarize, MaxTokens: 45})

	found := false
	for _, m := range out {
		if m.Role == request.RoleSystem && strings.Contains(m.Content.Text, "summarized away") {
			found = true
		}
	}
	assert.True(t, found, "summarize stub must leave a marker for the elided span")
	assert.Equal(t, "final question", out[len(out)-1].Content.Text)
}

func TestApplyContextStrategy_NeverDropsFinalMessage(t *testing.T) {
	msgs := conversation()
	// A budget too small for even the final message still keeps it.
	out := applyContextStrategy(charCounter, "m", msgs, ContextOptions{Strategy: StrategyTruncateOldest, MaxTokens: 1})
	require.NotEmpty(t, out)
	assert.Equal(t, "final question", out[len(out)-1].Content.Text)
}
