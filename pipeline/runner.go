// Package pipeline runs an ordered sequence of plugs against a Request
// and compiles builder-declared modifications into a concrete stage
// list.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/plug"
	"github.com/llmcore/llmcore/request"
)

// Runner executes a compiled pipeline (an ordered []plug.Spec) against one
// Request. Unlike the teacher's Pipeline, a Runner holds no registration
// state of its own — stage ordering is decided once by the catalog/builder
// compiler and handed to Run as a plain slice.
type Runner struct {
	logger *slog.Logger
}

// NewRunner builds a Runner. A nil logger falls back to slog.Default, same
// as the teacher's NewPipeline.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes stages in order against req. It stops at the first stage
// that returns an error (recorded via PutError, turning it into a
// plug_exception if the stage itself panicked), or the first stage that
// calls req.Halt().
//
// Run never returns a non-nil error itself; failures live on the Request's
// error list. The caller inspects req.State()/req.FirstError() afterward.
func (r *Runner) Run(ctx context.Context, req *request.Request, stages []plug.Spec) {
	req.Advance()

	for _, stage := range stages {
		if req.Halted() {
			r.logger.Debug("pipeline halted, skipping remaining stages",
				"request_id", req.ID, "next_stage", stage.Plug.Name())
			break
		}
		if req.State().Terminal() {
			break
		}

		start := time.Now()
		r.logger.Debug("running plug", "request_id", req.ID, "plug", stage.Plug.Name())

		next, err := r.callSafely(ctx, req, stage)
		if next != nil {
			req = next
		}

		dur := time.Since(start)
		if err != nil {
			r.logger.Warn("plug returned error", "request_id", req.ID, "plug", stage.Plug.Name(),
				"error", err, "duration", dur)
			le := errors.AsLLMError(err)
			req.PutError(le.Kind, le.Error())
			req.Fail(le.Kind, "")
			break
		}
		r.logger.Debug("plug completed", "request_id", req.ID, "plug", stage.Plug.Name(), "duration", dur)
	}

	if req.Halted() {
		req.CompleteOrHalted()
		return
	}
	if !req.State().Terminal() {
		if result := req.Result(); result != nil {
			// A stage (ParseResponse, a recovered stream) produced the
			// final response; the completed transition is deferred to
			// here so post-result stages (TrackCost, cache store) got
			// their turn.
			req.Complete(result)
			return
		}
		// No stage produced a result; this is a misconfigured pipeline
		// (missing a terminal stage such as ExecuteRequest/ParseResponse),
		// surfaced as a plug_exception.
		req.Fail(errors.KindPlugException, "pipeline completed without producing a result")
	}
}

// callSafely invokes stage.Plug.Call, converting a panic into a
// plug_exception error rather than crashing the runner.
func (r *Runner) callSafely(ctx context.Context, req *request.Request, stage plug.Spec) (res *request.Request, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			detail := fmt.Sprintf("%v", rec)
			req.PutPlugError(stage.Plug.Name(), detail)
			err = errors.PlugException(stage.Plug.Name(), detail)
		}
	}()
	return stage.Plug.Call(ctx, req, stage.Opts)
}
