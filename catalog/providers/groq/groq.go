// Package groq registers the Groq catalog entry over the
// OpenAI-compatible base adapter.
package groq

import (
	"github.com/llmcore/llmcore/catalog"
	"github.com/llmcore/llmcore/catalog/providers/openaicompat"
)

const (
	ProviderName   = "groq"
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
)

var defaultModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-8b-instant",
	"mixtral-8x7b-32768",
	"gemma2-9b-it",
}

// NewEntry bundles the adapter for catalog registration.
func NewEntry() *catalog.Entry {
	return &catalog.Entry{
		Provider: openaicompat.New(openaicompat.Info{
			Name:           ProviderName,
			DefaultBaseURL: DefaultBaseURL,
			ModelPrefixes:  []string{"llama-", "llama3-", "mixtral-", "gemma2-"},
			Models:         defaultModels,
		}),
		Models:       defaultModels,
		DefaultModel: DefaultModel,
		Capabilities: catalog.Capabilities{
			Streaming:       true,
			FunctionCalling: true,
			JSONMode:        true,
		},
	}
}
