package gemini

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
		ModelName:    "gemini-1.5-flash",
		APIKey:       "AIza-test",
	}
}

func TestBuildRequest_EndpointSelection(t *testing.T) {
	messages := []request.Message{{Role: request.RoleUser, Content: request.TextContent("hi")}}

	req, err := request.Create(ProviderName, messages, request.Options{})
	require.NoError(t, err)
	httpReq, err := New().BuildRequest(context.Background(), req, testDeployment())
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"/v1beta/models/gemini-1.5-flash:generateContent", httpReq.URL.String())
	assert.Equal(t, "AIza-test", httpReq.Header.Get("x-goog-api-key"))

	req, err = request.Create(ProviderName, messages, request.Options{Stream: true})
	require.NoError(t, err)
	httpReq, err = New().BuildRequest(context.Background(), req, testDeployment())
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL.String(), ":streamGenerateContent")
	assert.Equal(t, "sse", httpReq.URL.Query().Get("alt"))
}

func TestBuildRequest_RolesAndSystemInstruction(t *testing.T) {
	req, err := request.Create(ProviderName, []request.Message{
		{Role: request.RoleSystem, Content: request.TextContent("be terse")},
		{Role: request.RoleUser, Content: request.TextContent("question")},
		{Role: request.RoleAssistant, Content: request.TextContent("answer")},
	}, request.Options{})
	require.NoError(t, err)

	httpReq, err := New().BuildRequest(context.Background(), req, testDeployment())
	require.NoError(t, err)
	body, _ := io.ReadAll(httpReq.Body)

	var wire struct {
		Contents []struct {
			Role string `json:"role"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	require.NoError(t, json.Unmarshal(body, &wire))

	require.NotNil(t, wire.SystemInstruction)
	assert.Equal(t, "be terse", wire.SystemInstruction.Parts[0].Text)
	require.Len(t, wire.Contents, 2)
	assert.Equal(t, "user", wire.Contents[0].Role)
	assert.Equal(t, "model", wire.Contents[1].Role, "assistant maps to the model role")
}

func TestParseResponse_Unified(t *testing.T) {
	raw := `{
		"responseId": "r1",
		"modelVersion": "gemini-1.5-flash-002",
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "hi "}, {"text": "there"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 6, "candidatesTokenCount": 2, "totalTokenCount": 8}
	}`

	resp, err := New().ParseResponse(&http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(raw))})
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, provider.FinishStop, resp.FinishReason)
	assert.Equal(t, provider.Usage{InputTokens: 6, OutputTokens: 2, TotalTokens: 8}, resp.Usage)
	assert.Equal(t, "gemini-1.5-flash-002", resp.Model)
}

func TestParseResponse_FunctionCall(t *testing.T) {
	raw := `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"functionCall": {"name": "get_weather", "args": {"city": "Oslo"}}}]},
			"finishReason": "STOP"
		}]
	}`

	resp, err := New().ParseResponse(&http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(raw))})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, resp.ToolCalls[0].Arguments)
}

func TestParseStreamChunk(t *testing.T) {
	p := New()

	chunk, err := p.ParseStreamChunk([]byte(`{"candidates":[{"content":{"parts":[{"text":"delta"}]}}]}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "delta", chunk.Content)
	assert.Nil(t, chunk.FinishReason)

	chunk, err = p.ParseStreamChunk([]byte(`{"candidates":[{"content":{"parts":[{"text":""}]},"finishReason":"MAX_TOKENS"}]}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.NotNil(t, chunk.FinishReason)
	assert.Equal(t, provider.FinishLength, *chunk.FinishReason)

	chunk, err = p.ParseStreamChunk([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestMapError(t *testing.T) {
	body := []byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`)
	err := New().MapError(http.StatusTooManyRequests, body)
	var le *llmerrors.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, llmerrors.KindRateLimited, le.Kind)
	assert.Equal(t, "quota exceeded", le.Message)
}

func TestFinishReasonMapping(t *testing.T) {
	assert.Equal(t, provider.FinishSafety, mapFinishReason("SAFETY"))
	assert.Equal(t, provider.FinishContentFilter, mapFinishReason("RECITATION"))
	assert.Equal(t, provider.FinishOther, mapFinishReason("SOMETHING_NEW"))
}
