// Package errors defines the unified error-kind taxonomy every stage in the
// request pipeline reports through. All provider- and transport-specific
// failures are mapped to one of these kinds before they reach the caller.
package errors

import "fmt"

// Kind is the closed set of error kinds a Request can fail with.
type Kind string

const (
	KindInvalidMessages   Kind = "invalid_messages"
	KindUnknownProvider   Kind = "unknown_provider"
	KindConfigMissing     Kind = "config_missing"
	KindAPIKeyMissing     Kind = "api_key_missing"
	KindCircuitOpen       Kind = "circuit_open"
	KindRateLimited       Kind = "rate_limited"
	KindAuthentication    Kind = "authentication_error"
	KindAPIError          Kind = "api_error"
	KindTimeout           Kind = "timeout"
	KindNetworkError      Kind = "network_error"
	KindStreamInterrupted Kind = "stream_interrupted"
	KindParseFailed       Kind = "parse_failed"
	KindPlugException     Kind = "plug_exception"
	KindCallbackAborted   Kind = "callback_aborted"
	KindHalted            Kind = "halted"
)

// Retryable reports whether a caller may retry after this kind of failure,
// propagation policy.
func (k Kind) Retryable() bool {
	switch k {
	case KindCircuitOpen, KindRateLimited, KindTimeout, KindNetworkError:
		return true
	default:
		return false
	}
}

// LLMError is the tagged value every pipeline-originated failure surfaces
// as to the caller.
type LLMError struct {
	Kind     Kind
	Message  string
	Provider string
	Model    string
	Status   int // HTTP status, when Kind == KindAPIError
	Plug     string // plug name, when Kind == KindPlugException
	Detail   string
	Err      error // wrapped transport/parse error, if any
}

func (e *LLMError) Error() string {
	if e.Plug != "" {
		return fmt.Sprintf("[%s] plug %q: %s", e.Kind, e.Plug, e.Detail)
	}
	if e.Status != 0 {
		return fmt.Sprintf("[%s] provider=%s model=%s status=%d: %s", e.Kind, e.Provider, e.Model, e.Status, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry this specific error.
func (e *LLMError) Retryable() bool { return e.Kind.Retryable() }

// New builds a plain LLMError of the given kind.
func New(kind Kind, message string) *LLMError {
	return &LLMError{Kind: kind, Message: message}
}

// Wrap builds an LLMError of the given kind, wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *LLMError {
	return &LLMError{Kind: kind, Message: message, Err: err}
}

// APIError builds the `api_error{status, body}` kind.
func APIError(provider, model string, status int, body string) *LLMError {
	return &LLMError{Kind: KindAPIError, Provider: provider, Model: model, Status: status, Message: body}
}

// PlugException builds the `plug_exception{plug, detail}` kind, used by the
// pipeline Runner when it recovers a panic from a Plug.
func PlugException(plug string, detail string) *LLMError {
	return &LLMError{Kind: KindPlugException, Plug: plug, Detail: detail}
}

// AsLLMError extracts an *LLMError from err, or synthesizes a network_error
// wrapping it if err isn't already one.
func AsLLMError(err error) *LLMError {
	if err == nil {
		return nil
	}
	var le *LLMError
	if ok := asLLMError(err, &le); ok {
		return le
	}
	return Wrap(KindNetworkError, err.Error(), err)
}

func asLLMError(err error, target **LLMError) bool {
	for err != nil {
		if le, ok := err.(*LLMError); ok {
			*target = le
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
