package request

import "github.com/goccy/go-json"

// ToolChoice is "auto" | "none" | {function name}.
type ToolChoice struct {
	Mode     string // "auto", "none", or "function"
	Function string // set when Mode == "function"
}

// ResponseFormatType is the closed set of response_format shapes.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat mirrors the response_format option.
type ResponseFormat struct {
	Type   ResponseFormatType
	Schema json.RawMessage // set when Type == ResponseFormatJSONSchema
}

// ToolSchema is one entry of the `tools` option.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// CachePolicy is the `cache` option: boolean, disabled, or a TTL.
type CachePolicy struct {
	Disabled bool
	// TTLMillis == 0 with Disabled == false means "use the policy default".
	TTLMillis int64
}

// Options is the closed set of recognized call-time parameters. A
// provider MAY ignore any field it doesn't support; the pipeline never
// rejects an option it doesn't recognize as long as it came through this
// struct (unrecognized keys belong in Extra).
type Options struct {
	Model               string
	Temperature         *float64 // 0.0–2.0
	TopP                *float64 // 0.0–1.0
	MaxTokens           *int
	MaxCompletionTokens *int
	Stop                []string
	Seed                *int64
	N                   *int
	ResponseFormat      *ResponseFormat
	Tools               []ToolSchema
	ToolChoice          *ToolChoice
	Stream              bool
	System              string
	SafetySettings      json.RawMessage
	TimeoutMillis       int64
	Cache               *CachePolicy
	Retry               bool

	// Extra carries provider-specific parameters passed through unchanged.
	Extra map[string]json.RawMessage
}

// Validate applies the boundary checks below (temperature and top_p
// ranges, positive max_tokens and n); everything else is advisory and left
// to providers.
func (o Options) Validate() error {
	if o.Temperature != nil && (*o.Temperature < 0.0 || *o.Temperature > 2.0) {
		return errInvalidOption("temperature", "must be within [0.0, 2.0]")
	}
	if o.TopP != nil && (*o.TopP < 0.0 || *o.TopP > 1.0) {
		return errInvalidOption("top_p", "must be within [0.0, 1.0]")
	}
	if o.MaxTokens != nil && *o.MaxTokens < 1 {
		return errInvalidOption("max_tokens", "must be positive")
	}
	if o.N != nil && *o.N < 1 {
		return errInvalidOption("n", "must be positive")
	}
	return nil
}

type optionError struct {
	field, reason string
}

func (e *optionError) Error() string { return e.field + ": " + e.reason }

func errInvalidOption(field, reason string) error {
	return &optionError{field: field, reason: reason}
}
