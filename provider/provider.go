// Package provider defines the contract a concrete LLM backend adapter
// implements, grounded on the teacher's internal/provider/interface.go.
package provider

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/llmcore/llmcore/request"
)

// FinishReason is the closed set from LLMResponse.finish_reason.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishSafety        FinishReason = "safety"
	FinishOther         FinishReason = "other"
)

// Usage is the LLMResponse.usage record.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ToolCall is one entry of LLMResponse.tool_calls.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Metadata is the LLMResponse.metadata record.
type Metadata struct {
	Provider string
	ID       string
	Created  int64
	Raw      json.RawMessage
}

// LLMResponse is the typed result ParseResponse produces.
type LLMResponse struct {
	Content      string
	Model        string
	Role         request.Role
	FinishReason FinishReason
	Usage        Usage
	ToolCalls    []ToolCall
	Refusal      string
	// Cost is nil when TrackCost found no pricing entry for the model
	// (Open Question #3): the field stays optional rather than erroring.
	Cost     *float64
	Metadata Metadata
}

// StreamChunk is the streaming unit. A sequence of chunks for one
// request has exactly one terminal chunk (Done == true) unless the stream
// errored.
type StreamChunk struct {
	Content       string
	FinishReason  *FinishReason
	ToolCallDelta *ToolCall
	Role          request.Role
	Done          bool
}

// Deployment carries the resolved routing/auth information FetchConfiguration
// assigns before BuildRequest runs, grounded on the teacher's
// provider.Deployment.
type Deployment struct {
	ID            string
	ProviderName  string
	ModelName     string
	BaseURL       string
	APIKey        string
	TimeoutMillis int64
	Headers       map[string]string
}

// Provider is the contract a concrete backend adapter (openai, anthropic,
// gemini, ...) implements. The catalog wraps these methods as Plugs; the
// interface itself carries no pipeline awareness.
type Provider interface {
	// Name identifies the provider ("openai", "anthropic", "gemini", ...).
	Name() string

	// SupportsModel reports whether this adapter can serve model.
	SupportsModel(model string) bool

	// BuildRequest transforms a Request plus its resolved Deployment into a
	// wire-format HTTP request.
	BuildRequest(ctx context.Context, req *request.Request, dep Deployment) (*http.Request, error)

	// ParseResponse transforms a successful HTTP response body into the
	// unified LLMResponse.
	ParseResponse(resp *http.Response) (*LLMResponse, error)

	// ParseStreamChunk decodes one SSE frame's data payload into a
	// StreamChunk. It returns (nil, nil) for frames that carry no chunk
	// (keep-alives, comments).
	ParseStreamChunk(data []byte) (*StreamChunk, error)

	// MapError converts a non-2xx HTTP response into the unified error
	// taxonomy.
	MapError(statusCode int, body []byte) error
}
