package openaicompat

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/request"
)

func testInfo() Info {
	return Info{
		Name:           "groq",
		DefaultBaseURL: "https://api.groq.com/openai/v1",
		ModelPrefixes:  []string{"llama-"},
		Models:         []string{"llama-3.1-8b-instant"},
		ExtraHeaders:   map[string]string{"X-Custom": "yes"},
	}
}

func TestBuildRequest_InfoDrivenEndpointAndAuth(t *testing.T) {
	req, err := request.Create("groq", []request.Message{
		{Role: request.RoleUser, Content: request.TextContent("hi")},
	}, request.Options{})
	require.NoError(t, err)

	p := New(testInfo())
	httpReq, err := p.BuildRequest(context.Background(), req, provider.Deployment{
		ModelName: "llama-3.1-8b-instant",
		APIKey:    "gsk-test",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.groq.com/openai/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer gsk-test", httpReq.Header.Get("Authorization"))
	assert.Equal(t, "yes", httpReq.Header.Get("X-Custom"))
}

func TestBuildRequest_CustomAuthHeader(t *testing.T) {
	info := testInfo()
	info.APIKeyHeader = "api-key"
	info.APIKeyPrefix = ""

	req, err := request.Create("groq", []request.Message{
		{Role: request.RoleUser, Content: request.TextContent("hi")},
	}, request.Options{})
	require.NoError(t, err)

	httpReq, err := New(info).BuildRequest(context.Background(), req, provider.Deployment{
		ModelName: "llama-3.1-8b-instant", APIKey: "raw-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "raw-key", httpReq.Header.Get("api-key"))
	assert.Empty(t, httpReq.Header.Get("Authorization"))
}

func TestParseResponse_Unified(t *testing.T) {
	raw := `{
		"id": "cmpl-7",
		"model": "llama-3.1-8b-instant",
		"choices": [{"message": {"role": "assistant", "content": "fast"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 4, "completion_tokens": 1, "total_tokens": 5}
	}`

	resp, err := New(testInfo()).ParseResponse(&http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(raw))})
	require.NoError(t, err)

	assert.Equal(t, "fast", resp.Content)
	assert.Equal(t, provider.FinishStop, resp.FinishReason)
	assert.Equal(t, "groq", resp.Metadata.Provider)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestParseStreamChunk(t *testing.T) {
	p := New(testInfo())

	chunk, err := p.ParseStreamChunk([]byte(`{"choices":[{"delta":{"content":"x"}}]}`))
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "x", chunk.Content)

	chunk, err = p.ParseStreamChunk([]byte(`{"choices":[]}`))
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestMapError_UsesInfoName(t *testing.T) {
	err := New(testInfo()).MapError(http.StatusTooManyRequests, []byte(`{"error":{"message":"slow"}}`))
	var le *llmerrors.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, llmerrors.KindRateLimited, le.Kind)
	assert.Equal(t, "groq", le.Provider)
}

func TestSupportsModel_PrefixesAndList(t *testing.T) {
	p := New(testInfo())
	assert.True(t, p.SupportsModel("llama-3.1-8b-instant"))
	assert.True(t, p.SupportsModel("llama-4-future"))
	assert.False(t, p.SupportsModel("gpt-4o"))
}
