package catalog

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/llmcore/llmcore/request"
)

// TokenCounter estimates the token count of text under model's encoding.
type TokenCounter func(model, text string) int

var encodingCache sync.Map

const tokensPerMessage = 3

// CountTokens is the default TokenCounter: a tiktoken encoding resolved
// per model, with cl100k_base for models tiktoken has no table for, and a
// four-characters-per-token estimate only when no encoding can be loaded.
// ManageContext only needs a budget estimate, not an exact bill.
func CountTokens(model, text string) int {
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

func encodingFor(model string) *tiktoken.Tiktoken {
	if cached, ok := encodingCache.Load(model); ok {
		enc, _ := cached.(*tiktoken.Tiktoken)
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Non-OpenAI model names land here; cl100k_base is close enough
		// for budgeting.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			encodingCache.Store(model, (*tiktoken.Tiktoken)(nil))
			return nil
		}
	}
	encodingCache.Store(model, enc)
	return enc
}

// estimateMessages sums the token estimate over a message list, charging
// the per-message framing overhead chat endpoints add.
func estimateMessages(count TokenCounter, model string, messages []request.Message) int {
	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += count(model, messageText(m))
		if m.Name != "" {
			total += count(model, m.Name)
		}
	}
	return total
}

// messageText flattens a message's content into the text that counts
// against the window. Non-text parts are charged by their reference
// strings only; image token accounting is provider-specific and out of
// budget-estimate scope.
func messageText(m request.Message) string {
	if m.Content.IsText() {
		return m.Content.Text
	}
	var sb strings.Builder
	for _, p := range m.Content.Parts {
		switch p.Type {
		case request.PartText:
			sb.WriteString(p.Text)
		case request.PartToolCall:
			sb.WriteString(p.ToolCallName)
			sb.WriteString(p.ToolCallArgs)
		case request.PartToolResult:
			sb.WriteString(p.ToolResultContent)
		case request.PartImage:
			sb.WriteString(p.ImageURL)
		case request.PartAudio:
			sb.WriteString(p.AudioFormat)
		}
	}
	return sb.String()
}
