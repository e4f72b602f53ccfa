package catalog

import (
	"github.com/goccy/go-json"

	"github.com/llmcore/llmcore/reliability"
	"github.com/llmcore/llmcore/request"
)

// FingerprintPolicy decides which message list participates in cache
// identity. The default uses the post-ManageContext list, so trimming
// participates in identity; a provider entry can opt out via
// FingerprintPreTrim if its semantics demand the original messages.
type FingerprintPolicy int

const (
	FingerprintPostTrim FingerprintPolicy = iota
	FingerprintPreTrim
)

// cacheableMessage is the normalized form a message is fingerprinted as:
// stable field order, no transport artifacts.
type cacheableMessage struct {
	Role    request.Role   `json:"role"`
	Name    string         `json:"name,omitempty"`
	Text    string         `json:"text,omitempty"`
	Parts   []request.Part `json:"parts,omitempty"`
}

// cacheableOptions is the options subset that participates in identity.
// Non-semantic keys (stream flag, timeouts, cache policy, retry) are
// excluded so toggling them never splits the cache.
type cacheableOptions struct {
	Model               string                  `json:"model"`
	Temperature         *float64                `json:"temperature,omitempty"`
	TopP                *float64                `json:"top_p,omitempty"`
	MaxTokens           *int                    `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                    `json:"max_completion_tokens,omitempty"`
	Stop                []string                `json:"stop,omitempty"`
	Seed                *int64                  `json:"seed,omitempty"`
	N                   *int                    `json:"n,omitempty"`
	ResponseFormat      *request.ResponseFormat `json:"response_format,omitempty"`
	Tools               []request.ToolSchema    `json:"tools,omitempty"`
	ToolChoice          *request.ToolChoice     `json:"tool_choice,omitempty"`
	System              string                  `json:"system,omitempty"`
	SafetySettings      json.RawMessage         `json:"safety_settings,omitempty"`
}

// fingerprintRequest computes the stable cache key for req from its
// current (post-ManageContext, under the default policy) message list.
func fingerprintRequest(req *request.Request) (string, error) {
	return fingerprintParts(req.Provider, req.Messages, req.Options)
}

// fingerprintParts is the policy-agnostic core: callers choose which
// message list participates in identity.
func fingerprintParts(providerName string, messages []request.Message, o request.Options) (string, error) {
	msgs := make([]cacheableMessage, 0, len(messages))
	for _, m := range messages {
		cm := cacheableMessage{Role: m.Role, Name: m.Name}
		if m.Content.IsText() {
			cm.Text = m.Content.Text
		} else {
			cm.Parts = m.Content.Parts
		}
		msgs = append(msgs, cm)
	}

	normalized, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}

	subset, err := json.Marshal(cacheableOptions{
		Model:               o.Model,
		Temperature:         o.Temperature,
		TopP:                o.TopP,
		MaxTokens:           o.MaxTokens,
		MaxCompletionTokens: o.MaxCompletionTokens,
		Stop:                o.Stop,
		Seed:                o.Seed,
		N:                   o.N,
		ResponseFormat:      o.ResponseFormat,
		Tools:               o.Tools,
		ToolChoice:          o.ToolChoice,
		System:              o.System,
		SafetySettings:      o.SafetySettings,
	})
	if err != nil {
		return "", err
	}

	return reliability.Fingerprint(reliability.FingerprintInput{
		Provider:          providerName,
		Model:             o.Model,
		NormalizedMessage: normalized,
		OptionsSubset:     subset,
	}), nil
}
