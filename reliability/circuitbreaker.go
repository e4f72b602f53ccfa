// Package reliability implements the Reliability Substrate: a
// concurrent per-name circuit breaker and a pluggable HTTP cache facade,
// grounded on the teacher's internal/resilience and internal/cache
// packages.
package reliability

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CircuitState is the three-state machine from Circuit State record.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitConfig is the `config` record attached to a Circuit State.
type CircuitConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	CallTimeout      time.Duration
}

// DefaultCircuitConfig mirrors the teacher's DefaultCircuitBreakerConfig.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout: 30 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

func (c CircuitConfig) validate() error {
	if c.FailureThreshold <= 0 {
		return errors.New("failure_threshold must be > 0")
	}
	if c.SuccessThreshold <= 0 {
		return errors.New("success_threshold must be > 0")
	}
	if c.ResetTimeout < 0 {
		return errors.New("reset_timeout must be >= 0")
	}
	if c.CallTimeout <= 0 {
		return errors.New("call_timeout must be > 0")
	}
	return nil
}

// EventKind is one of the telemetry events a circuit breaker call may emit.
type EventKind string

const (
	EventStateChange    EventKind = "state_change"
	EventCallSuccess    EventKind = "call_success"
	EventCallFailure    EventKind = "call_failure"
	EventCallTimeout    EventKind = "call_timeout"
	EventCallRejected   EventKind = "call_rejected"
	EventCircuitCreated EventKind = "circuit_created"
	EventCircuitReset   EventKind = "circuit_reset"
	EventConfigUpdated  EventKind = "config_updated"
)

// Event is one telemetry emission from the breaker, consumed by an
// observability.EventSink.
type Event struct {
	Kind   EventKind
	Name   string
	From   CircuitState
	To     CircuitState
	Detail string
}

// EventFunc receives breaker telemetry. Implementations must not block.
type EventFunc func(Event)

// Stats is the result of get_stats(name).
type Stats struct {
	Name         string
	State        CircuitState
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
	Config       CircuitConfig
}

// CircuitBreaker is one named circuit. It is created on
// first reference and persists for process lifetime; see Breakers below
// for the concurrent per-name table.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        CircuitState
	failureCount int
	successCount int
	lastFailure  time.Time
	config       CircuitConfig
	// history retains the last known config for rollback.
	history []CircuitConfig

	limiter *rate.Limiter
	onEvent EventFunc
}

func newCircuitBreaker(name string, cfg CircuitConfig, onEvent EventFunc) *CircuitBreaker {
	cb := &CircuitBreaker{name: name, config: cfg, onEvent: onEvent}
	cb.emit(Event{Kind: EventCircuitCreated, Name: name})
	return cb
}

func (cb *CircuitBreaker) emit(e Event) {
	if cb.onEvent != nil {
		cb.onEvent(e)
	}
}

// allow decides whether a call may proceed, per the closed -> open ->
// half_open -> closed state machine. It returns false when the circuit is
// open and not yet eligible for a half-open probe.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.emit(Event{Kind: EventStateChange, Name: cb.name, From: from, To: to})
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = time.Now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name: cb.name,
		State: cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure: cb.lastFailure,
		Config: cb.config,
	}
}

func (cb *CircuitBreaker) reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.emit(Event{Kind: EventCircuitReset, Name: cb.name})
}

func (cb *CircuitBreaker) updateConfig(cfg CircuitConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.history = append(cb.history, cb.config)
	cb.config = cfg
	cb.emit(Event{Kind: EventConfigUpdated, Name: cb.name})
	return nil
}

// rollback restores the most recently replaced config.
func (cb *CircuitBreaker) rollback() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.history) == 0 {
		return errors.New("no prior config to roll back to")
	}
	cb.config = cb.history[len(cb.history)-1]
	cb.history = cb.history[:len(cb.history)-1]
	cb.emit(Event{Kind: EventConfigUpdated, Name: cb.name, Detail: "rollback"})
	return nil
}

// Breakers is the concurrent per-name circuit table. It is the component
// the catalog's CircuitBreaker pre-call Plug consults.
type Breakers struct {
	mu       sync.RWMutex
	circuits map[string]*CircuitBreaker
	config   CircuitConfig
	onEvent  EventFunc
}

// NewBreakers builds a breaker table with a default config applied to
// circuits created without an explicit override.
func NewBreakers(defaultConfig CircuitConfig, onEvent EventFunc) *Breakers {
	return &Breakers{
		circuits: make(map[string]*CircuitBreaker),
		config: defaultConfig,
		onEvent: onEvent,
	}
}

// get returns the circuit for name, creating it with the table's default
// config on first reference.
func (b *Breakers) get(name string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.circuits[name]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok = b.circuits[name]; ok {
		return cb
	}
	cb = newCircuitBreaker(name, b.config, b.onEvent)
	b.circuits[name] = cb
	return cb
}

// Call runs fn under the named circuit's timeout. It returns ErrCircuitOpen
// without invoking fn when the circuit is open and ineligible for a
// half-open probe.
func (b *Breakers) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cb := b.get(name)
	if !cb.allow() {
		cb.emit(Event{Kind: EventCallRejected, Name: name})
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.config.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil {
			cb.recordFailure()
			cb.emit(Event{Kind: EventCallFailure, Name: name, Detail: err.Error()})
			return err
		}
		cb.recordSuccess()
		cb.emit(Event{Kind: EventCallSuccess, Name: name})
		return nil
	case <-callCtx.Done():
		cb.recordFailure()
		cb.emit(Event{Kind: EventCallTimeout, Name: name})
		return context.DeadlineExceeded
	}
}

// Allow is the narrow predicate the catalog's CircuitBreaker pre-call Plug
// uses: "consult the named circuit; on open, fail fast",
// without wrapping a call — ExecuteRequest records the outcome afterward
// via RecordSuccess/RecordFailure.
func (b *Breakers) Allow(name string) bool { return b.get(name).allow() }

func (b *Breakers) RecordSuccess(name string) { b.get(name).recordSuccess() }
func (b *Breakers) RecordFailure(name string) { b.get(name).recordFailure() }

// GetStats implements the `get_stats(name)` administrative operation.
func (b *Breakers) GetStats(name string) Stats { return b.get(name).stats() }

// Reset implements the `reset(name)` administrative operation.
func (b *Breakers) Reset(name string) { b.get(name).reset() }

// UpdateConfig implements `update_config(name, changes)`, validating
// thresholds.
func (b *Breakers) UpdateConfig(name string, cfg CircuitConfig) error {
	return b.get(name).updateConfig(cfg)
}

// UpdateConfigBatch applies cfg to every named circuit. The config is
// validated once up front, so a bad config changes nothing.
func (b *Breakers) UpdateConfigBatch(names []string, cfg CircuitConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	for _, name := range names {
		if err := b.get(name).updateConfig(cfg); err != nil {
			return err
		}
	}
	return nil
}

// RollbackConfig restores the previously active config for name.
func (b *Breakers) RollbackConfig(name string) error {
	return b.get(name).rollback()
}

// Limiter returns a token-bucket rate limiter for name, lazily created,
// guarding ExecuteRequest fan-out per circuit (generalized from the
// teacher's per-API-key x/time/rate usage in internal/auth/ratelimiter.go).
func (b *Breakers) Limiter(name string, rps float64, burst int) *rate.Limiter {
	cb := b.get(name)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.limiter == nil {
		cb.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return cb.limiter
}
