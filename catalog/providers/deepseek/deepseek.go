// Package deepseek registers the DeepSeek catalog entry over the
// OpenAI-compatible base adapter.
package deepseek

import (
	"github.com/llmcore/llmcore/catalog"
	"github.com/llmcore/llmcore/catalog/providers/openaicompat"
)

const (
	ProviderName   = "deepseek"
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"
)

var defaultModels = []string{"deepseek-chat", "deepseek-reasoner"}

// NewEntry bundles the adapter for catalog registration.
func NewEntry() *catalog.Entry {
	return &catalog.Entry{
		Provider: openaicompat.New(openaicompat.Info{
			Name:           ProviderName,
			DefaultBaseURL: DefaultBaseURL,
			ModelPrefixes:  []string{"deepseek-"},
			Models:         defaultModels,
		}),
		Models:       defaultModels,
		DefaultModel: DefaultModel,
		Capabilities: catalog.Capabilities{
			Streaming:       true,
			FunctionCalling: true,
			JSONMode:        true,
			Reasoning:       true,
		},
	}
}
