// Package plug defines the unit of work a pipeline is built from: a
// named stage with a pure function from (*request.Request, opts) to
// (*request.Request, error).
package plug

import (
	"context"

	"github.com/llmcore/llmcore/request"
)

// Plug is one named stage of a pipeline. Implementations must not retain
// the Request across calls and must return the same Request identity they
// were given, mutated in place.
type Plug interface {
	// Name identifies the stage for logging, tracing, and
	// insert_before/insert_after targeting.
	Name() string

	// Call runs the stage. opts is the stage's own configuration, supplied
	// at registration time (catalog) or compile time (builder custom plug).
	Call(ctx context.Context, req *request.Request, opts any) (*request.Request, error)
}

// Func adapts a plain function to the Plug interface, mirroring the
// teacher's function-plugin convenience pattern.
type Func struct {
	FuncName string
	Fn       func(ctx context.Context, req *request.Request, opts any) (*request.Request, error)
}

func (f Func) Name() string { return f.FuncName }

func (f Func) Call(ctx context.Context, req *request.Request, opts any) (*request.Request, error) {
	return f.Fn(ctx, req, opts)
}

// New builds a Func-backed Plug inline.
func New(name string, fn func(ctx context.Context, req *request.Request, opts any) (*request.Request, error)) Plug {
	return Func{FuncName: name, Fn: fn}
}

// Hint declares which assigns a Plug reads and writes. Advisory only:
// the runner never enforces it, but introspection tooling can use it to
// reason about stage data flow.
type Hint struct {
	Reads  []string
	Writes []string
}

// Hinter is optionally implemented by Plugs that publish a capability
// hint.
type Hinter interface {
	Hint() Hint
}

// Spec pairs a registered Plug with the options the catalog or builder
// resolved for it at compile time. A pipeline is an ordered []Spec.
type Spec struct {
	Plug Plug
	Opts any
}
