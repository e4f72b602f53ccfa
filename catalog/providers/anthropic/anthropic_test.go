package anthropic

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/request"
)

func testDeployment() provider.Deployment {
	return provider.Deployment{
		ProviderName: ProviderName,
		ModelName:    "claude-3-5-sonnet-20241022",
		APIKey:       "sk-ant-test",
	}
}

func TestBuildRequest_SystemExtractionAndHeaders(t *testing.T) {
	req, err := request.Create(ProviderName, []request.Message{
		{Role: request.RoleSystem, Content: request.TextContent("be terse")},
		{Role: request.RoleUser, Content: request.TextContent("hi")},
	}, request.Options{})
	require.NoError(t, err)

	httpReq, err := New().BuildRequest(context.Background(), req, testDeployment())
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL+"/v1/messages", httpReq.URL.String())
	assert.Equal(t, "sk-ant-test", httpReq.Header.Get("x-api-key"))
	assert.Equal(t, DefaultAPIVersion, httpReq.Header.Get("anthropic-version"))

	body, _ := io.ReadAll(httpReq.Body)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))

	assert.Equal(t, "be terse", wire["system"], "system turns move to the top-level field")
	msgs := wire["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(DefaultMaxTokens), wire["max_tokens"], "max_tokens is required and defaulted")
}

func TestBuildRequest_ToolResultBecomesUserBlock(t *testing.T) {
	req, err := request.Create(ProviderName, []request.Message{
		{Role: request.RoleUser, Content: request.TextContent("weather?")},
		{Role: request.RoleAssistant, Content: request.PartsContent(
			request.Part{Type: request.PartToolCall, ToolCallID: "tu_1", ToolCallName: "get_weather", ToolCallArgs: `{"city":"Oslo"}`},
		)},
		{Role: request.RoleTool, Content: request.PartsContent(
			request.Part{Type: request.PartToolResult, ToolResultID: "tu_1", ToolResultContent: "4C, rain"},
		)},
	}, request.Options{})
	require.NoError(t, err)

	httpReq, err := New().BuildRequest(context.Background(), req, testDeployment())
	require.NoError(t, err)
	body, _ := io.ReadAll(httpReq.Body)

	s := string(body)
	assert.Contains(t, s, `"tool_use"`)
	assert.Contains(t, s, `"tool_result"`)
	assert.Contains(t, s, `"tool_use_id":"tu_1"`)
}

func TestParseResponse_Unified(t *testing.T) {
	raw := `{
		"id": "msg_1",
		"role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "there"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 11, "output_tokens": 4}
	}`

	resp, err := New().ParseResponse(&http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(raw))})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, provider.FinishStop, resp.FinishReason)
	assert.Equal(t, provider.Usage{InputTokens: 11, OutputTokens: 4, TotalTokens: 15}, resp.Usage)
	assert.Equal(t, "msg_1", resp.Metadata.ID)
}

func TestParseResponse_ToolUse(t *testing.T) {
	raw := `{
		"id": "msg_2",
		"model": "claude-3-5-sonnet-20241022",
		"content": [{"type": "tool_use", "id": "tu_9", "name": "get_weather", "input": {"city": "Oslo"}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 5, "output_tokens": 3}
	}`

	resp, err := New().ParseResponse(&http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(raw))})
	require.NoError(t, err)

	assert.Equal(t, provider.FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_9", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Oslo"}`, resp.ToolCalls[0].Arguments)
}

func TestParseStreamChunk_EventGrammar(t *testing.T) {
	p := New()

	chunk, err := p.ParseStreamChunk([]byte(`{"type":"message_start","message":{"role":"assistant"}}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, request.RoleAssistant, chunk.Role)

	chunk, err = p.ParseStreamChunk([]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "hi", chunk.Content)

	chunk, err = p.ParseStreamChunk([]byte(`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.NotNil(t, chunk.FinishReason)
	assert.Equal(t, provider.FinishLength, *chunk.FinishReason)

	chunk, err = p.ParseStreamChunk([]byte(`{"type":"message_stop"}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.True(t, chunk.Done)

	chunk, err = p.ParseStreamChunk([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestMapError(t *testing.T) {
	err := New().MapError(http.StatusTooManyRequests, []byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	var le *llmerrors.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, llmerrors.KindRateLimited, le.Kind)
	assert.True(t, le.Retryable())
	assert.Equal(t, "slow down", le.Message)
}

func TestSupportsModel(t *testing.T) {
	p := New()
	assert.True(t, p.SupportsModel("claude-3-5-haiku-20241022"))
	assert.True(t, p.SupportsModel("claude-4-anything"))
	assert.False(t, p.SupportsModel("gpt-4o"))
}
