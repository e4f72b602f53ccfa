// Package gemini implements the Google Gemini catalog entry over the
// generateContent / streamGenerateContent endpoints.
package gemini

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
)

const (
	ProviderName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
)

var defaultModels = []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"}

// Provider implements the Gemini API adapter.
type Provider struct{}

// New creates the adapter.
func New() *Provider { return &Provider{} }

// NewEntry bundles the adapter for catalog registration.
func NewEntry() *catalog.Entry {
	return &catalog.Entry{
		Provider:     New(),
		Models:       defaultModels,
		DefaultModel: DefaultModel,
		Capabilities: catalog.Capabilities{
			Streaming:       true,
			FunctionCalling: true,
			Vision:          true,
			JSONMode:        true,
			Embeddings:      true,
		},
	}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range defaultModels {
		if m == model {
			return true
		}
	}
	return strings.HasPrefix(model, "gemini-")
}

type geminiRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool      `json:"tools,omitempty"`
	ToolConfig        *toolConfig       `json:"toolConfig,omitempty"`
	SafetySettings    json.RawMessage   `json:"safetySettings,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *inlineData       `json:"inlineData,omitempty"`
	FileData         *fileData         `json:"fileData,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type functionCall struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

type functionResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response,omitempty"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	CandidateCount   *int     `json:"candidateCount,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolConfig struct {
	FunctionCallingConfig functionCallingConfig `json:"functionCallingConfig"`
}

type functionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// BuildRequest creates an HTTP request for generateContent, or
// streamGenerateContent with alt=sse when the stream option is set.
func (p *Provider) BuildRequest(ctx context.Context, req *request.Request, dep provider.Deployment) (*http.Request, error) {
	gr, err := p.transformRequest(req)
	if err != nil {
		return nil, fmt.Errorf("transform request: %w", err)
	}
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	baseURL := dep.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	verb := ":generateContent"
	if req.Options.Stream {
		verb = ":streamGenerateContent?alt=sse"
	}
	url := strings.TrimSuffix(baseURL, "/") + "/v1beta/models/" + dep.ModelName + verb

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", dep.APIKey)
	for k, v := range dep.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) transformRequest(req *request.Request) (*geminiRequest, error) {
	o := req.Options
	out := &geminiRequest{SafetySettings: o.SafetySettings}

	if o.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: o.System}}}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case request.RoleSystem:
			if out.SystemInstruction == nil {
				out.SystemInstruction = &content{}
			}
			out.SystemInstruction.Parts = append(out.SystemInstruction.Parts, part{Text: flattenText(m.Content)})
		default:
			c, err := transformMessage(m)
			if err != nil {
				return nil, err
			}
			out.Contents = append(out.Contents, c)
		}
	}

	gc := &generationConfig{
		Temperature:    o.Temperature,
		TopP:           o.TopP,
		StopSequences:  o.Stop,
		CandidateCount: o.N,
		Seed:           o.Seed,
	}
	if o.MaxTokens != nil {
		gc.MaxOutputTokens = o.MaxTokens
	} else if o.MaxCompletionTokens != nil {
		gc.MaxOutputTokens = o.MaxCompletionTokens
	}
	if o.ResponseFormat != nil && o.ResponseFormat.Type != request.ResponseFormatText {
		gc.ResponseMimeType = "application/json"
	}
	out.GenerationConfig = gc

	if len(o.Tools) > 0 {
		tool := geminiTool{}
		for _, t := range o.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, functionDeclaration{
				Name: t.Name, Description: t.Description, Parameters: t.Parameters,
			})
		}
		out.Tools = []geminiTool{tool}
	}
	if o.ToolChoice != nil {
		out.ToolConfig = transformToolChoice(*o.ToolChoice)
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

func transformMessage(m request.Message) (content, error) {
	role := "user"
	if m.Role == request.RoleAssistant {
		role = "model"
	}

	if m.Content.IsText() {
		return content{Role: role, Parts: []part{{Text: m.Content.Text}}}, nil
	}

	var parts []part
	for _, pt := range m.Content.Parts {
		switch pt.Type {
		case request.PartText:
			parts = append(parts, part{Text: pt.Text})
		case request.PartImage:
			parts = append(parts, imagePart(pt.ImageURL))
		case request.PartAudio:
			parts = append(parts, part{InlineData: &inlineData{MimeType: "audio/" + pt.AudioFormat, Data: pt.AudioData}})
		case request.PartToolCall:
			var args any
			if err := json.Unmarshal([]byte(pt.ToolCallArgs), &args); err != nil {
				args = pt.ToolCallArgs
			}
			parts = append(parts, part{FunctionCall: &functionCall{Name: pt.ToolCallName, Args: args}})
		case request.PartToolResult:
			parts = append(parts, part{FunctionResponse: &functionResponse{
				Name:     pt.ToolResultID,
				Response: map[string]string{"content": pt.ToolResultContent},
			}})
		default:
			return content{}, fmt.Errorf("unsupported content part %q", pt.Type)
		}
	}
	return content{Role: role, Parts: parts}, nil
}

func imagePart(url string) part {
	if data, ok := strings.CutPrefix(url, "data:"); ok {
		mimeType, payload, found := strings.Cut(data, ";base64,")
		if found {
			return part{InlineData: &inlineData{MimeType: mimeType, Data: payload}}
		}
	}
	return part{FileData: &fileData{FileURI: url}}
}

func transformToolChoice(tc request.ToolChoice) *toolConfig {
	switch tc.Mode {
	case "auto":
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "AUTO"}}
	case "none":
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "NONE"}}
	case "function":
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{
			Mode: "ANY", AllowedFunctionNames: []string{tc.Function},
		}}
	default:
		return nil
	}
}

type geminiResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ParseResponse transforms a generateContent response into the unified
// LLMResponse.
func (p *Provider) ParseResponse(resp *http.Response) (*provider.LLMResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return nil, fmt.Errorf("response carries no candidates")
	}

	cand := gr.Candidates[0]
	out := &provider.LLMResponse{
		Model:        gr.ModelVersion,
		Role:         request.RoleAssistant,
		FinishReason: mapFinishReason(cand.FinishReason),
		Metadata:     provider.Metadata{Provider: ProviderName, ID: gr.ResponseID, Raw: body},
	}
	for _, pt := range cand.Content.Parts {
		if pt.Text != "" {
			out.Content += pt.Text
		}
		if pt.FunctionCall != nil {
			args, _ := json.Marshal(pt.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				Name: pt.FunctionCall.Name, Arguments: string(args),
			})
		}
	}
	if gr.UsageMetadata != nil {
		out.Usage = provider.Usage{
			InputTokens:  gr.UsageMetadata.PromptTokenCount,
			OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  gr.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "STOP":
		return provider.FinishStop
	case "MAX_TOKENS":
		return provider.FinishLength
	case "SAFETY":
		return provider.FinishSafety
	case "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return provider.FinishContentFilter
	case "":
		return provider.FinishOther
	default:
		return provider.FinishOther
	}
}

// ParseStreamChunk decodes one streamGenerateContent SSE frame; each
// frame is a full geminiResponse carrying a delta's worth of parts.
func (p *Provider) ParseStreamChunk(data []byte) (*provider.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var gr geminiResponse
	if err := json.Unmarshal(trimmed, &gr); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return nil, nil
	}

	cand := gr.Candidates[0]
	out := &provider.StreamChunk{Role: request.RoleAssistant}
	for _, pt := range cand.Content.Parts {
		out.Content += pt.Text
		if pt.FunctionCall != nil {
			args, _ := json.Marshal(pt.FunctionCall.Args)
			out.ToolCallDelta = &provider.ToolCall{Name: pt.FunctionCall.Name, Arguments: string(args)}
		}
	}
	if cand.FinishReason != "" {
		f := mapFinishReason(cand.FinishReason)
		out.FinishReason = &f
	}
	return out, nil
}

// MapError converts a non-2xx response into the unified taxonomy.
func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
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
