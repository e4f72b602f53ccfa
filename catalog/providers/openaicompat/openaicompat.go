// Package openaicompat provides a parameterized adapter for the many
// providers that speak OpenAI's chat-completions dialect with minor
// variations. Concrete entries (mistral, groq, deepseek, ...) supply an
// Info describing their endpoint, auth header shape, and model prefixes.
package openaicompat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/request"
)

// Info describes one OpenAI-compatible provider's deviations from the
// reference dialect.
type Info struct {
	// Name is the provider identifier ("groq", "deepseek", ...).
	Name string

	// DefaultBaseURL is used when the Deployment carries no base URL.
	DefaultBaseURL string

	// APIKeyHeader and APIKeyPrefix shape the auth header; they default
	// to "Authorization" and "Bearer ".
	APIKeyHeader string
	APIKeyPrefix string

	// ChatEndpoint is the completions path, default "/chat/completions".
	ChatEndpoint string

	// ExtraHeaders are always sent.
	ExtraHeaders map[string]string

	// ModelPrefixes identify this provider's models for SupportsModel.
	ModelPrefixes []string

	// Models is the advertised model list.
	Models []string
}

func (i Info) withDefaults() Info {
	if i.APIKeyHeader == "" {
		i.APIKeyHeader = "Authorization"
	}
	if i.APIKeyHeader == "Authorization" && i.APIKeyPrefix == "" {
		i.APIKeyPrefix = "Bearer "
	}
	if i.ChatEndpoint == "" {
		i.ChatEndpoint = "/chat/completions"
	}
	return i
}

// Provider implements the adapter over one Info.
type Provider struct {
	info Info
}

// New builds the adapter for info.
func New(info Info) *Provider {
	return &Provider{info: info.withDefaults()}
}

func (p *Provider) Name() string { return p.info.Name }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.info.Models {
		if m == model {
			return true
		}
	}
	for _, prefix := range p.info.ModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
	Seed                *int64          `json:"seed,omitempty"`
	N                   *int            `json:"n,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
	Tools               []tool          `json:"tools,omitempty"`
	ToolChoice          any             `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// BuildRequest creates an HTTP request against the provider's completions
// endpoint.
func (p *Provider) BuildRequest(ctx context.Context, req *request.Request, dep provider.Deployment) (*http.Request, error) {
	body, err := json.Marshal(p.transformRequest(req, dep))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	baseURL := dep.BaseURL
	if baseURL == "" {
		baseURL = p.info.DefaultBaseURL
	}
	url := strings.TrimSuffix(baseURL, "/") + p.info.ChatEndpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(p.info.APIKeyHeader, p.info.APIKeyPrefix+dep.APIKey)
	for k, v := range p.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range dep.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) transformRequest(req *request.Request, dep provider.Deployment) *chatRequest {
	o := req.Options
	out := &chatRequest{
		Model:               dep.ModelName,
		Temperature:         o.Temperature,
		TopP:                o.TopP,
		MaxTokens:           o.MaxTokens,
		MaxCompletionTokens: o.MaxCompletionTokens,
		Stop:                o.Stop,
		Seed:                o.Seed,
		N:                   o.N,
		Stream:              o.Stream,
	}

	if o.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: o.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, transformMessage(m))
	}

	if o.ResponseFormat != nil {
		out.ResponseFormat = &responseFormat{Type: string(o.ResponseFormat.Type), JSONSchema: o.ResponseFormat.Schema}
	}
	for _, t := range o.Tools {
		out.Tools = append(out.Tools, tool{Type: "function", Function: toolFunction{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	if o.ToolChoice != nil {
		if o.ToolChoice.Mode == "function" {
			out.ToolChoice = map[string]any{"type": "function", "function": map[string]string{"name": o.ToolChoice.Function}}
		} else {
			out.ToolChoice = o.ToolChoice.Mode
		}
	}
	return out
}

func transformMessage(m request.Message) chatMessage {
	out := chatMessage{Role: string(m.Role), Name: m.Name}
	if m.Content.IsText() {
		out.Content = m.Content.Text
		return out
	}

	var parts []contentPart
	for _, p := range m.Content.Parts {
		switch p.Type {
		case request.PartText:
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
		case request.PartImage:
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: p.ImageURL}})
		case request.PartToolCall:
			out.ToolCalls = append(out.ToolCalls, toolCall{
				ID:   p.ToolCallID,
				Type: "function",
				Function: toolCallFunction{Name: p.ToolCallName, Arguments: p.ToolCallArgs},
			})
		case request.PartToolResult:
			out.Role = "tool"
			out.ToolCallID = p.ToolResultID
			out.Content = p.ToolResultContent
		}
	}
	if out.Content == nil && parts != nil {
		out.Content = parts
	}
	return out
}

type chatResponse struct {
	ID      string   `json:"id"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Refusal   string     `json:"refusal,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ParseResponse transforms a completions response into the unified
// LLMResponse.
func (p *Provider) ParseResponse(resp *http.Response) (*provider.LLMResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("response carries no choices")
	}

	ch := cr.Choices[0]
	out := &provider.LLMResponse{
		Content:      ch.Message.Content,
		Model:        cr.Model,
		Role:         request.Role(ch.Message.Role),
		FinishReason: mapFinishReason(ch.FinishReason),
		Refusal:      ch.Message.Refusal,
		Metadata: provider.Metadata{
			Provider: p.info.Name,
			ID:       cr.ID,
			Created:  cr.Created,
			Raw:      body,
		},
	}
	if cr.Usage != nil {
		out.Usage = provider.Usage{
			InputTokens:  cr.Usage.PromptTokens,
			OutputTokens: cr.Usage.CompletionTokens,
			TotalTokens:  cr.Usage.TotalTokens,
		}
	}
	for _, tc := range ch.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishStop
	case "length":
		return provider.FinishLength
	case "tool_calls", "function_call":
		return provider.FinishToolCalls
	case "content_filter":
		return provider.FinishContentFilter
	default:
		return provider.FinishOther
	}
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

// ParseStreamChunk decodes one SSE frame's data payload.
func (p *Provider) ParseStreamChunk(data []byte) (*provider.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var sc streamChunk
	if err := json.Unmarshal(trimmed, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}
	if len(sc.Choices) == 0 {
		return nil, nil
	}

	ch := sc.Choices[0]
	out := &provider.StreamChunk{
		Content: ch.Delta.Content,
		Role:    request.Role(ch.Delta.Role),
	}
	if ch.FinishReason != "" {
		f := mapFinishReason(ch.FinishReason)
		out.FinishReason = &f
	}
	if len(ch.Delta.ToolCalls) > 0 {
		tc := ch.Delta.ToolCalls[0]
		out.ToolCallDelta = &provider.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return out, nil
}

// MapError converts a non-2xx response into the unified taxonomy.
func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llmerrors.LLMError{Kind: llmerrors.KindAuthentication, Provider: p.info.Name, Status: statusCode, Message: message}
	case http.StatusTooManyRequests:
		return &llmerrors.LLMError{Kind: llmerrors.KindRateLimited, Provider: p.info.Name, Status: statusCode, Message: message}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &llmerrors.LLMError{Kind: llmerrors.KindTimeout, Provider: p.info.Name, Status: statusCode, Message: message}
	default:
		return llmerrors.APIError(p.info.Name, "", statusCode, message)
	}
}
