// Package request defines Request, the spine of every pipeline operation.
// A Request is exclusively owned by the currently executing Plug and
// carries all per-call state: provider, messages, options, assigns,
// private, errors, and lifecycle state.
package request

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	llmerrors "github.com/llmcore/llmcore/errors"
)

// State is the lifecycle state of a Request. A Request never
// regresses: pending -> executing -> {streaming|completed|error|halted};
// streaming -> {completed|error}.
type State string

const (
	StatePending   State = "pending"
	StateExecuting State = "executing"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateError     State = "error"
	StateHalted    State = "halted"
)

// Terminal reports whether s is one of the terminal states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateHalted
}

var legalEdges = map[State]map[State]bool{
	StatePending: {StateExecuting: true},
	StateExecuting: {StateStreaming: true, StateCompleted: true, StateError: true, StateHalted: true},
	StateStreaming: {StateCompleted: true, StateError: true},
}

// ErrorRecord is one entry of Request.errors.
type ErrorRecord struct {
	Kind   llmerrors.Kind
	Detail string
	Plug   string
}

var idSeq atomic.Uint64

// nextID returns a monotonically unique-within-process identifier. It
// combines a UUID (for global uniqueness in logs shipped off-process) with
// a process-local sequence number, since a UUID alone gives no ordering.
func nextID() string {
	n := idSeq.Add(1)
	return uuid.NewString() + "-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Request is the mutable-by-replacement record carrying all state for one
// call. It is never shared across threads during a run; ownership is
// exclusive to whichever Plug is currently executing.
type Request struct {
	ID       string
	Provider string
	Messages []Message
	Options  Options

	// result holds the final typed response. Its concrete type is
	// provider.LLMResponse; kept as `any` here so this package has no
	// dependency on the provider package. A stage (ParseResponse, a cache
	// hit) sets it via SetResult; the state transition to StateCompleted is
	// the Runner's job, so post-result stages (TrackCost, cache store)
	// still run.
	result any

	state  State
	errors []ErrorRecord

	mu      sync.RWMutex
	assigns map[string]any
	private map[string]any
}

// Create builds a new Request in StatePending. It validates message shape:
// non-empty, every message has a recognized role and well-formed content.
func Create(provider string, messages []Message, opts Options) (*Request, error) {
	if len(messages) == 0 {
		return nil, llmerrors.New(llmerrors.KindInvalidMessages, "messages must not be empty")
	}
	for i, m := range messages {
		if !m.Role.valid() {
			return nil, llmerrors.New(llmerrors.KindInvalidMessages, "message "+itoa(uint64(i))+" has unrecognized role")
		}
		if !m.Content.wellFormed() {
			return nil, llmerrors.New(llmerrors.KindInvalidMessages, "message "+itoa(uint64(i))+" has malformed content")
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, llmerrors.Wrap(llmerrors.KindInvalidMessages, "invalid options", err)
	}

	return &Request{
		ID: nextID(),
		Provider: provider,
		Messages: messages,
		Options: opts,
		state: StatePending,
		assigns: make(map[string]any),
		private: make(map[string]any),
	}, nil
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// transition enforces the legal-edges invariant. Callers hold no lock;
// transition acquires its own.
func (r *Request) transition(to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == to {
		return true
	}
	if r.state.Terminal() {
		// Once terminal, no further mutation.
		return false
	}
	if !legalEdges[r.state][to] {
		return false
	}
	r.state = to
	return true
}

// Advance moves the Request into StateExecuting if it is still pending.
// The Runner calls this once at the start of a run.
func (r *Request) Advance() { r.transition(StateExecuting) }

// Assign publishes an intermediate artifact under key.
func (r *Request) Assign(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigns[key] = value
}

// Assigns retrieves an assign by key.
func (r *Request) Assigns(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.assigns[key]
	return v, ok
}

// PutPrivate stores a runtime-reserved value. Plugs may use this for their own advisory bookkeeping,
// but the runtime reserves the "halted" key.
func (r *Request) PutPrivate(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.private[key] = value
}

// Private retrieves a private value by key.
func (r *Request) Private(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.private[key]
	return v, ok
}

const privateHaltedKey = "halted"

// Halt sets the runtime halt flag. Idempotent. After halt, the
// Runner skips remaining stages; it then completes with the result if one
// was already set, else surfaces KindHalted.
func (r *Request) Halt() {
	r.PutPrivate(privateHaltedKey, true)
}

// HaltWithResult records result and halts in one step — the cache-hit
// path: assign result and halt, letting the Runner finish the run as
// completed.
func (r *Request) HaltWithResult(result any) {
	r.SetResult(result)
	r.Halt()
}

// SetResult records the final typed response without transitioning state.
func (r *Request) SetResult(result any) {
	r.mu.Lock()
	r.result = result
	r.mu.Unlock()
}

// Result returns the recorded final response, or nil if none was set.
func (r *Request) Result() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Halted reports whether Halt has been called.
func (r *Request) Halted() bool {
	v, ok := r.Private(privateHaltedKey)
	return ok && v == true
}

// PutError appends an error record.
func (r *Request) PutError(kind llmerrors.Kind, detail string) {
	r.mu.Lock()
	r.errors = append(r.errors, ErrorRecord{Kind: kind, Detail: detail})
	r.mu.Unlock()
}

// PutPlugError appends a plug_exception error record naming the offending
// plug.
func (r *Request) PutPlugError(plug, detail string) {
	r.mu.Lock()
	r.errors = append(r.errors, ErrorRecord{Kind: llmerrors.KindPlugException, Detail: detail, Plug: plug})
	r.mu.Unlock()
}

// Errors returns a copy of the accumulated error records.
func (r *Request) Errors() []ErrorRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ErrorRecord, len(r.errors))
	copy(out, r.errors)
	return out
}

// FirstError returns the first accumulated error as an *errors.LLMError,
// or nil if none were recorded. This is what execute()/stream() translate
// into the public return value.
func (r *Request) FirstError() *llmerrors.LLMError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.errors) == 0 {
		return nil
	}
	e := r.errors[0]
	le := &llmerrors.LLMError{Kind: e.Kind, Detail: e.Detail, Plug: e.Plug, Provider: r.Provider}
	if e.Plug != "" {
		le.Message = "plug exception"
	} else {
		le.Message = e.Detail
	}
	return le
}

// MarkStreaming transitions StateExecuting -> StateStreaming.
func (r *Request) MarkStreaming() bool { return r.transition(StateStreaming) }

// Complete transitions to StateCompleted and stores result. Invariant:
// errors is empty iff state != error, so Complete refuses to run if errors
// were already recorded.
func (r *Request) Complete(result any) bool {
	r.mu.RLock()
	hasErrors := len(r.errors) > 0
	r.mu.RUnlock()
	if hasErrors {
		return false
	}
	if !r.transition(StateCompleted) {
		return false
	}
	r.mu.Lock()
	r.result = result
	r.mu.Unlock()
	return true
}

// Fail transitions to StateError, recording a final error if detail is
// non-empty. Idempotent with respect to already-recorded errors; a
// request already in a terminal state is left untouched.
func (r *Request) Fail(kind llmerrors.Kind, detail string) bool {
	if r.State().Terminal() {
		return false
	}
	if detail != "" {
		r.PutError(kind, detail)
	}
	return r.transition(StateError)
}

// CompleteOrHalted finalizes a halted Request: if a result was
// already set, complete with it; otherwise surface KindHalted.
func (r *Request) CompleteOrHalted() {
	r.mu.RLock()
	result := r.result
	r.mu.RUnlock()
	if result != nil {
		r.Complete(result)
		return
	}
	r.Fail(llmerrors.KindHalted, "pipeline halted with no result")
	r.mu.Lock()
	r.state = StateHalted
	r.mu.Unlock()
}
