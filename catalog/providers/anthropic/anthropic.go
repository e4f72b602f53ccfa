// Package anthropic implements the Anthropic catalog entry, transforming
// between the unified request shape and the Messages API.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/llmcore/llmcore/catalog"
	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/request"
	"github.com/llmcore/llmcore/streaming"
)

const (
	ProviderName      = "anthropic"
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultModel      = "claude-3-5-sonnet-20241022"

	// DefaultMaxTokens backs the Messages API's required max_tokens when
	// the caller didn't set one.
	DefaultMaxTokens = 4096
)

var defaultModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
}

// Provider implements the Anthropic Messages API adapter.
type Provider struct {
	apiVersion string
}

// New creates the adapter.
func New() *Provider { return &Provider{apiVersion: DefaultAPIVersion} }

// NewEntry bundles the adapter for catalog registration. A resumed
// Anthropic completion never replays prior output, so the recovery
// deduper stays the cumulative-length default.
func NewEntry() *catalog.Entry {
	return &catalog.Entry{
		Provider:     New(),
		Models:       defaultModels,
		DefaultModel: DefaultModel,
		Capabilities: catalog.Capabilities{
			Streaming:       true,
			FunctionCalling: true,
			Vision:          true,
			Reasoning:       true,
		},
		NewDeduper: func() streaming.Deduper { return streaming.NewSuffixDeduper() },
	}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range defaultModels {
		if m == model {
			return true
		}
	}
	return strings.HasPrefix(model, "claude-")
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	ToolChoice    *toolChoice        `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentBlock
}

type contentBlock struct {
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Input     any       `json:"input,omitempty"`
	ToolUseID string    `json:"tool_use_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Source    *imageSrc `json:"source,omitempty"`
}

type imageSrc struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"` // auto, any, tool, none
	Name string `json:"name,omitempty"`
}

// BuildRequest creates an HTTP request for the Messages API.
func (p *Provider) BuildRequest(ctx context.Context, req *request.Request, dep provider.Deployment) (*http.Request, error) {
	ar, err := p.transformRequest(req, dep)
	if err != nil {
		return nil, fmt.Errorf("transform request: %w", err)
	}
	body, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	baseURL := dep.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	url := strings.TrimSuffix(baseURL, "/") + "/v1/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", dep.APIKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)
	for k, v := range dep.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) transformRequest(req *request.Request, dep provider.Deployment) (*anthropicRequest, error) {
	o := req.Options
	out := &anthropicRequest{
		Model:         dep.ModelName,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   o.Temperature,
		TopP:          o.TopP,
		StopSequences: o.Stop,
		Stream:        o.Stream,
		System:        o.System,
	}
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	} else if o.MaxCompletionTokens != nil {
		out.MaxTokens = *o.MaxCompletionTokens
	}

	for _, m := range req.Messages {
		switch m.Role {
		case request.RoleSystem:
			// The Messages API takes system text as a top-level field.
			if out.System != "" {
				out.System += "\n"
			}
			out.System += flattenText(m.Content)
		case request.RoleTool:
			out.Messages = append(out.Messages, toolResultMessage(m))
		default:
			am, err := transformMessage(m)
			if err != nil {
				return nil, err
			}
			out.Messages = append(out.Messages, am)
		}
	}

	for _, t := range o.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	if o.ToolChoice != nil {
		out.ToolChoice = transformToolChoice(*o.ToolChoice)
	}
	return out, nil
}

func flattenText(c request.Content) string {
	if c.IsText() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type == request.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func transformMessage(m request.Message) (anthropicMessage, error) {
	if m.Content.IsText() {
		return anthropicMessage{Role: string(m.Role), Content: m.Content.Text}, nil
	}

	var blocks []contentBlock
	for _, p := range m.Content.Parts {
		switch p.Type {
		case request.PartText:
			blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
		case request.PartImage:
			blocks = append(blocks, contentBlock{Type: "image", Source: imageSource(p.ImageURL)})
		case request.PartToolCall:
			var input any
			if err := json.Unmarshal([]byte(p.ToolCallArgs), &input); err != nil {
				input = p.ToolCallArgs
			}
			blocks = append(blocks, contentBlock{Type: "tool_use", ID: p.ToolCallID, Name: p.ToolCallName, Input: input})
		case request.PartToolResult:
			blocks = append(blocks, contentBlock{Type: "tool_result", ToolUseID: p.ToolResultID, Content: p.ToolResultContent})
		default:
			return anthropicMessage{}, fmt.Errorf("unsupported content part %q", p.Type)
		}
	}
	return anthropicMessage{Role: string(m.Role), Content: blocks}, nil
}

func imageSource(url string) *imageSrc {
	if data, ok := strings.CutPrefix(url, "data:"); ok {
		mediaType, payload, found := strings.Cut(data, ";base64,")
		if found {
			return &imageSrc{Type: "base64", MediaType: mediaType, Data: payload}
		}
	}
	return &imageSrc{Type: "url", URL: url}
}

// toolResultMessage maps a tool-role turn onto the user-role tool_result
// block the Messages API expects.
func toolResultMessage(m request.Message) anthropicMessage {
	id := m.Name
	content := flattenText(m.Content)
	for _, p := range m.Content.Parts {
		if p.Type == request.PartToolResult {
			id = p.ToolResultID
			content = p.ToolResultContent
		}
	}
	return anthropicMessage{Role: "user", Content: []contentBlock{{Type: "tool_result", ToolUseID: id, Content: content}}}
}

func transformToolChoice(tc request.ToolChoice) *toolChoice {
	switch tc.Mode {
	case "auto":
		return &toolChoice{Type: "auto"}
	case "none":
		return &toolChoice{Type: "none"}
	case "function":
		return &toolChoice{Type: "tool", Name: tc.Function}
	default:
		return nil
	}
}

type anthropicResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ParseResponse transforms a Messages API response into the unified
// LLMResponse.
func (p *Provider) ParseResponse(resp *http.Response) (*provider.LLMResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var ar anthropicResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := &provider.LLMResponse{
		Model:        ar.Model,
		Role:         request.RoleAssistant,
		FinishReason: mapStopReason(ar.StopReason),
		Usage: provider.Usage{
			InputTokens:  ar.Usage.InputTokens,
			OutputTokens: ar.Usage.OutputTokens,
			TotalTokens:  ar.Usage.InputTokens + ar.Usage.OutputTokens,
		},
		Metadata: provider.Metadata{Provider: ProviderName, ID: ar.ID, Raw: body},
	}

	for _, block := range ar.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				ID: block.ID, Name: block.Name, Arguments: string(args),
			})
		}
	}
	return out, nil
}

func mapStopReason(reason string) provider.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return provider.FinishStop
	case "max_tokens":
		return provider.FinishLength
	case "tool_use":
		return provider.FinishToolCalls
	case "refusal":
		return provider.FinishSafety
	default:
		return provider.FinishOther
	}
}

type streamEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Delta   json.RawMessage `json:"delta,omitempty"`
}

// ParseStreamChunk decodes one Messages API stream event. The event
// grammar is typed: message_start opens, content_block_delta carries
// text, message_delta carries the stop reason, message_stop terminates.
func (p *Provider) ParseStreamChunk(data []byte) (*provider.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var ev streamEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	switch ev.Type {
	case "message_start":
		var msg struct {
			Role string `json:"role"`
		}
		_ = json.Unmarshal(ev.Message, &msg)
		return &provider.StreamChunk{Role: request.Role(msg.Role)}, nil

	case "content_block_delta":
		var delta struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
		}
		if err := json.Unmarshal(ev.Delta, &delta); err != nil {
			return nil, fmt.Errorf("unmarshal delta: %w", err)
		}
		switch delta.Type {
		case "text_delta":
			return &provider.StreamChunk{Content: delta.Text}, nil
		case "input_json_delta":
			return &provider.StreamChunk{ToolCallDelta: &provider.ToolCall{Arguments: delta.PartialJSON}}, nil
		}
		return nil, nil

	case "message_delta":
		var delta struct {
			StopReason string `json:"stop_reason"`
		}
		_ = json.Unmarshal(ev.Delta, &delta)
		if delta.StopReason == "" {
			return nil, nil
		}
		f := mapStopReason(delta.StopReason)
		return &provider.StreamChunk{FinishReason: &f}, nil

	case "message_stop":
		return &provider.StreamChunk{Done: true}, nil

	default:
		// ping, content_block_start/stop, and future event types carry
		// no chunk.
		return nil, nil
	}
}

// MapError converts a non-2xx response into the unified taxonomy.
func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llmerrors.LLMError{Kind: llmerrors.KindAuthentication, Provider: ProviderName, Status: statusCode, Message: message}
	case http.StatusTooManyRequests:
		return &llmerrors.LLMError{Kind: llmerrors.KindRateLimited, Provider: ProviderName, Status: statusCode, Message: message}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &llmerrors.LLMError{Kind: llmerrors.KindTimeout, Provider: ProviderName, Status: statusCode, Message: message}
	default:
		return llmerrors.APIError(ProviderName, "", statusCode, message)
	}
}
