// Package catalog maps (provider, operation) to a default pipeline and
// supplies the built-in Plug implementations every pipeline is assembled
// from. A catalog entry bundles a provider adapter with its model list,
// capability flags, and streaming hooks; the Catalog itself additionally
// owns the runtime collaborators the plugs need (config, secrets,
// breakers, cache, pricing, telemetry).
package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/llmcore/llmcore/observability"
	"github.com/llmcore/llmcore/pipeline"
	"github.com/llmcore/llmcore/plug"
	"github.com/llmcore/llmcore/pricing"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/reliability"
	"github.com/llmcore/llmcore/request"
	"github.com/llmcore/llmcore/secret"
	"github.com/llmcore/llmcore/streaming"
)

// Operation selects which default pipeline an execution compiles.
type Operation string

const (
	OpChat   Operation = "chat"
	OpStream Operation = "stream"
)

// Capabilities is the per-provider feature flag set.
type Capabilities struct {
	Streaming       bool
	FunctionCalling bool
	Vision          bool
	JSONMode        bool
	Reasoning       bool
	Embeddings      bool
}

// Entry is one registered provider: the adapter plus everything the
// pipeline needs to know about it.
type Entry struct {
	Provider     provider.Provider
	Models       []string
	DefaultModel string
	Capabilities Capabilities

	// ChatPipeline/StreamPipeline override the canonical defaults when
	// non-nil. Providers are free to register a different stage order.
	ChatPipeline   func(c *Catalog) []plug.Spec
	StreamPipeline func(c *Catalog) []plug.Spec

	// NewDeduper supplies this provider's stream-recovery dedup strategy;
	// nil selects the cumulative-length default. Providers differ in
	// whether a resumed completion includes a prefix of prior output, so
	// the dedup point stays pluggable.
	NewDeduper func() streaming.Deduper

	// ContinueFrom builds the message list for a recovery continuation
	// request from the messages already sent plus the accumulated partial
	// output. Nil appends the partial output as an assistant turn.
	ContinueFrom func(base []request.Message, accumulated string) []request.Message
}

// Catalog is the provider registry plus the runtime substrate shared by
// every pipeline run compiled against it.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	config     ConfigProvider
	secrets    *secret.Resolver
	breakers   *reliability.Breakers
	cache      *reliability.Cache
	pricing    *pricing.Registry
	sink       observability.EventSink
	logger     *slog.Logger
	httpClient *http.Client
	countTokens TokenCounter
	runner     *pipeline.Runner
}

// Option configures a Catalog at construction.
type Option func(*Catalog)

// WithConfigProvider sets the external config collaborator. Required for
// FetchConfiguration to resolve anything.
func WithConfigProvider(cp ConfigProvider) Option { return func(c *Catalog) { c.config = cp } }

// WithSecretResolver sets the resolver FetchConfiguration dispatches
// "scheme://" API-key references through.
func WithSecretResolver(r *secret.Resolver) Option { return func(c *Catalog) { c.secrets = r } }

// WithBreakers sets the circuit-breaker table. Nil disables the
// CircuitBreaker stage's effect.
func WithBreakers(b *reliability.Breakers) Option { return func(c *Catalog) { c.breakers = b } }

// WithCache sets the response-cache facade. Nil makes both cache stages
// no-ops.
func WithCache(cache *reliability.Cache) Option { return func(c *Catalog) { c.cache = cache } }

// WithPricing sets the registry TrackCost consults.
func WithPricing(r *pricing.Registry) Option { return func(c *Catalog) { c.pricing = r } }

// WithEventSink sets the telemetry sink. Nil drops events.
func WithEventSink(s observability.EventSink) Option { return func(c *Catalog) { c.sink = s } }

// WithLogger sets the structured logger threaded through the Runner and
// plugs.
func WithLogger(l *slog.Logger) Option { return func(c *Catalog) { c.logger = l } }

// WithHTTPClient sets the client ExecuteRequest issues calls on.
func WithHTTPClient(hc *http.Client) Option { return func(c *Catalog) { c.httpClient = hc } }

// WithTokenCounter overrides the estimator ManageContext budgets with.
func WithTokenCounter(tc TokenCounter) Option { return func(c *Catalog) { c.countTokens = tc } }

// New builds a Catalog with the given options, filling in safe defaults
// for anything unset.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		entries:     make(map[string]*Entry),
		pricing:     pricing.NewRegistry(),
		logger:      slog.Default(),
		httpClient:  &http.Client{},
		countTokens: CountTokens,
	}
	for _, o := range opts {
		o(c)
	}
	if c.config == nil {
		c.config = &StaticConfig{}
	}
	if c.secrets == nil {
		c.secrets = secret.NewResolver()
	}
	c.runner = pipeline.NewRunner(c.logger)
	return c
}

// Register adds (or replaces) an entry under its provider's name.
func (c *Catalog) Register(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Provider.Name()] = e
	c.logger.Info("provider registered",
		"provider", e.Provider.Name(), "default_model", e.DefaultModel, "models", len(e.Models))
}

// Get returns the entry for name.
func (c *Catalog) Get(name string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// Providers lists the registered provider names.
func (c *Catalog) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

// Pipeline returns the default pipeline for (provider, op), honoring any
// per-entry override. Unknown providers still get the canonical default so
// ValidateProvider can produce the proper unknown_provider error at run
// time rather than compile time.
func (c *Catalog) Pipeline(providerName string, op Operation) []plug.Spec {
	e, ok := c.Get(providerName)
	if ok {
		switch op {
		case OpStream:
			if e.StreamPipeline != nil {
				return e.StreamPipeline(c)
			}
		default:
			if e.ChatPipeline != nil {
				return e.ChatPipeline(c)
			}
		}
	}
	if op == OpStream {
		return c.DefaultStreamPipeline()
	}
	return c.DefaultChatPipeline()
}

// Runner returns the pipeline runner compiled pipelines execute on.
func (c *Catalog) Runner() *pipeline.Runner { return c.runner }

// Defaults returns the global defaults with fallbacks applied.
func (c *Catalog) Defaults() Defaults { return c.config.GlobalDefaults().withFallbacks() }

// Breakers exposes the circuit table for administrative operations
// (get_stats, reset, update_config).
func (c *Catalog) Breakers() *reliability.Breakers { return c.breakers }

// Cache exposes the response-cache facade.
func (c *Catalog) Cache() *reliability.Cache { return c.cache }

// Emit forwards one telemetry event to the configured sink, if any.
func (c *Catalog) Emit(ctx context.Context, e observability.Event) {
	if c.sink != nil {
		c.sink.Emit(ctx, e)
	}
}
