package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/reliability"
	"github.com/llmcore/llmcore/request"
)

func newTestRequest(t *testing.T, providerName string) *request.Request {
	t.Helper()
	req, err := request.Create(providerName, []request.Message{
		{Role: request.RoleUser, Content: request.TextContent("hi")},
	}, request.Options{Model: "test-model"})
	require.NoError(t, err)
	return req
}

func TestDefaultChatPipeline_CanonicalOrder(t *testing.T) {
	c := New()
	var names []string
	for _, s := range c.DefaultChatPipeline() {
		names = append(names, s.Plug.Name())
	}
	assert.Equal(t, []string{
		PlugValidateProvider,
		PlugFetchConfiguration,
		PlugManageContext,
		PlugCacheLookup,
		PlugCircuitBreaker,
		PlugBuildRequest,
		PlugExecuteRequest,
		PlugParseResponse,
		PlugTrackCost,
		PlugCacheStore,
	}, names)
}

func TestDefaultStreamPipeline_OmitsCacheAndParse(t *testing.T) {
	c := New()
	for _, s := range c.DefaultStreamPipeline() {
		name := s.Plug.Name()
		assert.NotContains(t, []string{PlugCacheLookup, PlugCacheStore, PlugParseResponse}, name)
	}
}

func TestValidateProvider_UnknownProvider(t *testing.T) {
	c := New()
	req := newTestRequest(t, "does_not_exist")

	_, err := c.ValidateProvider().Call(context.Background(), req, nil)
	require.Error(t, err)
	var le *llmerrors.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, llmerrors.KindUnknownProvider, le.Kind)
}

func TestFetchConfiguration_MissingConfigAndKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  *StaticConfig
		want llmerrors.Kind
	}{
		{
			name: "no provider config",
			cfg:  &StaticConfig{},
			want: llmerrors.KindConfigMissing,
		},
		{
			name: "empty api key",
			cfg: &StaticConfig{Providers: map[string]ProviderConfig{
				"p": {BaseURL: "http://localhost"},
			}},
			want: llmerrors.KindAPIKeyMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithConfigProvider(tt.cfg))
			req := newTestRequest(t, "p")

			_, err := c.FetchConfiguration().Call(context.Background(), req, nil)
			require.Error(t, err)
			var le *llmerrors.LLMError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.want, le.Kind)
		})
	}
}

func TestFingerprint_DeterministicAndSensitive(t *testing.T) {
	req1 := newTestRequest(t, "p")
	req2 := newTestRequest(t, "p")

	fp1, err := fingerprintRequest(req1)
	require.NoError(t, err)
	fp2, err := fingerprintRequest(req2)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "identical inputs must fingerprint identically")

	req3, err := request.Create("p", []request.Message{
		{Role: request.RoleUser, Content: request.TextContent("different")},
	}, request.Options{Model: "test-model"})
	require.NoError(t, err)
	fp3, err := fingerprintRequest(req3)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)

	// Non-semantic options don't participate in identity.
	req4 := newTestRequest(t, "p")
	req4.Options.Stream = true
	req4.Options.TimeoutMillis = 99
	fp4, err := fingerprintRequest(req4)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp4)
}

func TestCacheBypassRules(t *testing.T) {
	c := New(WithCache(reliability.NewCache(reliability.NewMemoryBackend(0), time.Minute)))

	stream := newTestRequest(t, "p")
	stream.Options.Stream = true
	assert.True(t, cacheBypassed(c, stream, CacheOptions{}), "streaming bypasses the cache")

	withTools := newTestRequest(t, "p")
	withTools.Options.Tools = []request.ToolSchema{{Name: "f"}}
	assert.True(t, cacheBypassed(c, withTools, CacheOptions{}))

	disabled := newTestRequest(t, "p")
	disabled.Options.Cache = &request.CachePolicy{Disabled: true}
	assert.True(t, cacheBypassed(c, disabled, CacheOptions{}))
}
