package secret_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmcore/llmcore/secret"
	"github.com/llmcore/llmcore/secret/env"
)

func TestResolver_LiteralPassthrough(t *testing.T) {
	r := secret.NewResolver()
	v, err := r.Resolve(context.Background(), "sk-literal-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal-key", v)
}

func TestResolver_EnvScheme(t *testing.T) {
	t.Setenv("LLM_TEST_API_KEY", "sk-from-env")

	r := secret.NewResolver(env.New())
	v, err := r.Resolve(context.Background(), "env://LLM_TEST_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", v)

	_, err = r.Resolve(context.Background(), "env://LLM_TEST_MISSING")
	assert.Error(t, err)
}

func TestResolver_UnknownScheme(t *testing.T) {
	r := secret.NewResolver(env.New())
	_, err := r.Resolve(context.Background(), "vault://secret/llm#api_key")
	assert.Error(t, err)
}
