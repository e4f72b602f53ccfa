// Package llmcore is a unified multi-provider LLM client library built
// around a composable request pipeline: every call runs an ordered list
// of plugs (validate, configure, cache, circuit-break, build, execute,
// parse, cost-track) against one Request, with a streaming coordinator
// and a pluggable reliability substrate underneath.
//
// The root package wires the batteries-included configuration: a catalog
// carrying the built-in provider entries, fronted by the ChatBuilder.
//
//	cat := llmcore.NewCatalog(
//		catalog.WithConfigProvider(cfg),
//		catalog.WithCache(reliability.NewCache(reliability.NewMemoryBackend(0), 5*time.Minute)),
//		catalog.WithBreakers(reliability.NewBreakers(reliability.DefaultCircuitConfig(), nil)),
//	)
//	resp, err := llmcore.Chat(cat, "openai", messages).
//		Model("gpt-4o-mini").Temperature(0).MaxTokens(64).
//		Execute(ctx)
package llmcore

import (
	"github.com/llmcore/llmcore/builder"
	"github.com/llmcore/llmcore/catalog"
	"github.com/llmcore/llmcore/catalog/providers/anthropic"
	"github.com/llmcore/llmcore/catalog/providers/deepseek"
	"github.com/llmcore/llmcore/catalog/providers/gemini"
	"github.com/llmcore/llmcore/catalog/providers/groq"
	"github.com/llmcore/llmcore/catalog/providers/mistral"
	"github.com/llmcore/llmcore/catalog/providers/openai"
	"github.com/llmcore/llmcore/request"
)

// NewCatalog builds a Catalog with the built-in provider entries
// registered: openai, anthropic, and gemini with native adapters, plus
// the OpenAI-compatible entries (mistral, groq, deepseek). Additional
// entries can be registered on the returned catalog.
func NewCatalog(opts ...catalog.Option) *catalog.Catalog {
	cat := catalog.New(opts...)
	cat.Register(openai.NewEntry())
	cat.Register(anthropic.NewEntry())
	cat.Register(gemini.NewEntry())
	cat.Register(mistral.NewEntry())
	cat.Register(groq.NewEntry())
	cat.Register(deepseek.NewEntry())
	return cat
}

// Chat starts a ChatBuilder for one call against providerName.
func Chat(cat *catalog.Catalog, providerName string, messages []request.Message) *builder.ChatBuilder {
	return builder.New(cat, providerName, messages)
}

// UserMessage is a convenience constructor for a plain user turn.
func UserMessage(text string) request.Message {
	return request.Message{Role: request.RoleUser, Content: request.TextContent(text)}
}

// SystemMessage is a convenience constructor for a system turn.
func SystemMessage(text string) request.Message {
	return request.Message{Role: request.RoleSystem, Content: request.TextContent(text)}
}

// AssistantMessage is a convenience constructor for an assistant turn.
func AssistantMessage(text string) request.Message {
	return request.Message{Role: request.RoleAssistant, Content: request.TextContent(text)}
}
