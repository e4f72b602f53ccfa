// Package mistral registers the Mistral AI catalog entry over the
// OpenAI-compatible base adapter.
package mistral

import (
	"github.com/llmcore/llmcore/catalog"
	"github.com/llmcore/llmcore/catalog/providers/openaicompat"
)

const (
	ProviderName   = "mistral"
	DefaultBaseURL = "https://api.mistral.ai/v1"
	DefaultModel   = "mistral-small-latest"
)

var defaultModels = []string{
	"mistral-large-latest",
	"mistral-small-latest",
	"codestral-latest",
	"open-mistral-nemo",
}

// NewEntry bundles the adapter for catalog registration.
func NewEntry() *catalog.Entry {
	return &catalog.Entry{
		Provider: openaicompat.New(openaicompat.Info{
			Name:           ProviderName,
			DefaultBaseURL: DefaultBaseURL,
			ModelPrefixes:  []string{"mistral-", "open-mistral-", "open-mixtral-", "codestral-"},
			Models:         defaultModels,
		}),
		Models:       defaultModels,
		DefaultModel: DefaultModel,
		Capabilities: catalog.Capabilities{
			Streaming:       true,
			FunctionCalling: true,
			JSONMode:        true,
			Embeddings:      true,
		},
	}
}
