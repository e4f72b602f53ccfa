// Package builder provides ChatBuilder, the user-facing value object that
// assembles a Request plus an ordered list of pipeline modifications,
// compiles them against the catalog's defaults, and runs the result.
package builder

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/llmcore/llmcore/catalog"
	"github.com/llmcore/llmcore/observability"
	"github.com/llmcore/llmcore/pipeline"
	"github.com/llmcore/llmcore/plug"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/request"
	"github.com/llmcore/llmcore/streaming"
)

var (
	// ErrUseStreamMethodForStreaming is returned by Execute on a builder
	// whose streaming flag is set.
	ErrUseStreamMethodForStreaming = errors.New("builder: use Stream for a streaming-flagged builder")

	// ErrInvalidCallback is returned by Stream when no usable callback
	// was supplied.
	ErrInvalidCallback = errors.New("builder: stream requires a non-nil callback")
)

// NoExpiry is a WithCache TTL meaning "never expire".
const NoExpiry = 100 * 365 * 24 * time.Hour

// ChatBuilder accumulates per-call state before execution. Methods
// mutate and return the same builder for chaining; a builder is
// single-use and not safe for concurrent mutation.
type ChatBuilder struct {
	cat          *catalog.Catalog
	providerName string
	messages     []request.Message
	options      request.Options
	mods         []pipeline.Modification
	streamFlag   bool
}

// New starts a builder for one chat call against providerName.
func New(cat *catalog.Catalog, providerName string, messages []request.Message) *ChatBuilder {
	return &ChatBuilder{cat: cat, providerName: providerName, messages: messages}
}

// WithOptions replaces the whole option set at once.
func (b *ChatBuilder) WithOptions(o request.Options) *ChatBuilder {
	b.options = o
	return b
}

// Model overrides the configured default model.
func (b *ChatBuilder) Model(model string) *ChatBuilder {
	b.options.Model = model
	return b
}

// Temperature sets the sampling temperature (validated to [0.0, 2.0] at
// execute time).
func (b *ChatBuilder) Temperature(t float64) *ChatBuilder {
	b.options.Temperature = &t
	return b
}

// TopP sets nucleus sampling.
func (b *ChatBuilder) TopP(p float64) *ChatBuilder {
	b.options.TopP = &p
	return b
}

// MaxTokens caps the completion length.
func (b *ChatBuilder) MaxTokens(n int) *ChatBuilder {
	b.options.MaxTokens = &n
	return b
}

// Seed requests deterministic sampling where the provider supports it.
func (b *ChatBuilder) Seed(seed int64) *ChatBuilder {
	b.options.Seed = &seed
	return b
}

// Stop sets the stop sequences.
func (b *ChatBuilder) Stop(sequences ...string) *ChatBuilder {
	b.options.Stop = sequences
	return b
}

// N sets the completions count.
func (b *ChatBuilder) N(n int) *ChatBuilder {
	b.options.N = &n
	return b
}

// System sets the system prompt, added as a leading system message where
// the provider supports one.
func (b *ChatBuilder) System(prompt string) *ChatBuilder {
	b.options.System = prompt
	return b
}

// Tools declares the callable function schemas.
func (b *ChatBuilder) Tools(tools ...request.ToolSchema) *ChatBuilder {
	b.options.Tools = tools
	return b
}

// ToolChoice constrains tool selection.
func (b *ChatBuilder) ToolChoice(tc request.ToolChoice) *ChatBuilder {
	b.options.ToolChoice = &tc
	return b
}

// ResponseFormat requests text, json_object, or json_schema output.
func (b *ChatBuilder) ResponseFormat(rf request.ResponseFormat) *ChatBuilder {
	b.options.ResponseFormat = &rf
	return b
}

// Timeout sets the overall call deadline.
func (b *ChatBuilder) Timeout(d time.Duration) *ChatBuilder {
	b.options.TimeoutMillis = d.Milliseconds()
	return b
}

// Streaming flags the builder for the stream path; Execute will refuse
// to run it.
func (b *ChatBuilder) Streaming() *ChatBuilder {
	b.streamFlag = true
	return b
}

// WithCache sets the cache TTL for this call. A zero TTL keeps the
// policy default; NoExpiry keeps the entry until evicted.
func (b *ChatBuilder) WithCache(ttl time.Duration) *ChatBuilder {
	b.mods = append(b.mods,
		pipeline.Modification{Kind: pipeline.ModReplace, Target: catalog.PlugCacheLookup,
			Plug: b.cat.CacheLookup(), Opts: catalog.CacheOptions{TTL: ttl}},
		pipeline.Modification{Kind: pipeline.ModReplace, Target: catalog.PlugCacheStore,
			Plug: b.cat.CacheStorePlug(), Opts: catalog.CacheOptions{TTL: ttl}},
	)
	return b
}

// WithCacheDisabled keeps both cache stages in the pipeline but makes
// them bypass the backend.
func (b *ChatBuilder) WithCacheDisabled() *ChatBuilder {
	b.options.Cache = &request.CachePolicy{Disabled: true}
	return b
}

// WithoutCache removes both cache stages from the compiled pipeline.
func (b *ChatBuilder) WithoutCache() *ChatBuilder {
	b.mods = append(b.mods,
		pipeline.Modification{Kind: pipeline.ModRemove, Target: catalog.PlugCacheLookup},
		pipeline.Modification{Kind: pipeline.ModRemove, Target: catalog.PlugCacheStore},
	)
	return b
}

// WithoutCostTracking removes the TrackCost stage.
func (b *ChatBuilder) WithoutCostTracking() *ChatBuilder {
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModRemove, Target: catalog.PlugTrackCost})
	return b
}

// WithContextStrategy replaces the ManageContext stage's options.
func (b *ChatBuilder) WithContextStrategy(strategy catalog.ContextStrategy, opts catalog.ContextOptions) *ChatBuilder {
	opts.Strategy = strategy
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModReplace,
		Target: catalog.PlugManageContext, Plug: b.cat.ManageContext(), Opts: opts})
	return b
}

// WithCustomPlug appends a stage to the compiled pipeline.
func (b *ChatBuilder) WithCustomPlug(p plug.Plug, opts any) *ChatBuilder {
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModAppend, Plug: p, Opts: opts})
	return b
}

// InsertBefore inserts a stage before the named anchor.
func (b *ChatBuilder) InsertBefore(anchor string, p plug.Plug, opts any) *ChatBuilder {
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModInsertBefor, Anchor: anchor, Plug: p, Opts: opts})
	return b
}

// InsertAfter inserts a stage after the named anchor.
func (b *ChatBuilder) InsertAfter(anchor string, p plug.Plug, opts any) *ChatBuilder {
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModInsertAfter, Anchor: anchor, Plug: p, Opts: opts})
	return b
}

// ReplacePlug substitutes the named stage in place.
func (b *ChatBuilder) ReplacePlug(target string, p plug.Plug, opts any) *ChatBuilder {
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModReplace, Target: target, Plug: p, Opts: opts})
	return b
}

// WithPipeline replaces the whole pipeline; once a custom replacement is
// declared, every other modification (before or after it) is ignored at
// compile time, and only the first custom replacement counts.
func (b *ChatBuilder) WithPipeline(stages []plug.Spec) *ChatBuilder {
	b.mods = append(b.mods, pipeline.Modification{Kind: pipeline.ModCustom, Pipeline: stages})
	return b
}

// InspectPipeline returns the compiled pipeline the next Execute/Stream
// would run, for introspection.
func (b *ChatBuilder) InspectPipeline() []plug.Spec {
	op := catalog.OpChat
	if b.streamFlag {
		op = catalog.OpStream
	}
	return pipeline.Compile(b.cat.Pipeline(b.providerName, op), b.mods)
}

// DebugInfo is a snapshot of the builder for logging and tests.
type DebugInfo struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	Messages      int      `json:"messages"`
	Streaming     bool     `json:"streaming"`
	Modifications int      `json:"modifications"`
	Pipeline      []string `json:"pipeline"`
}

// DebugInfo reports the builder's current shape.
func (b *ChatBuilder) DebugInfo() DebugInfo {
	stages := b.InspectPipeline()
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Plug.Name())
	}
	return DebugInfo{
		Provider:      b.providerName,
		Model:         b.options.Model,
		Messages:      len(b.messages),
		Streaming:     b.streamFlag,
		Modifications: len(b.mods),
		Pipeline:      names,
	}
}

// String renders DebugInfo as JSON for log lines.
func (d DebugInfo) String() string {
	raw, _ := json.Marshal(d)
	return string(raw)
}

// Execute compiles and runs the non-streaming pipeline, translating the
// first accumulated error record into the returned error.
func (b *ChatBuilder) Execute(ctx context.Context) (*provider.LLMResponse, error) {
	if b.streamFlag {
		return nil, ErrUseStreamMethodForStreaming
	}

	req, err := b.prepare()
	if err != nil {
		return nil, err
	}
	return b.run(ctx, req, catalog.OpChat)
}

// Stream compiles and runs the streaming pipeline, delivering decoded
// chunks to callback on this task. A slow callback slows consumption;
// that is the backpressure.
func (b *ChatBuilder) Stream(ctx context.Context, callback streaming.Callback) error {
	if callback == nil {
		return ErrInvalidCallback
	}
	b.streamFlag = true
	b.options.Stream = true

	req, err := b.prepare()
	if err != nil {
		return err
	}

	req.PutPrivate(catalog.PrivateStreamCallback, streaming.Callback(callback))
	_, runErr := b.run(ctx, req, catalog.OpStream)
	return runErr
}

// prepare validates and constructs the Request.
func (b *ChatBuilder) prepare() (*request.Request, error) {
	return request.Create(b.providerName, b.messages, b.options)
}

func (b *ChatBuilder) run(ctx context.Context, req *request.Request, op catalog.Operation) (*provider.LLMResponse, error) {
	if req.Options.TimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Options.TimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	stages := pipeline.Compile(b.cat.Pipeline(b.providerName, op), b.mods)

	start := time.Now()
	b.cat.Emit(ctx, observability.Event{Kind: observability.EventRequestStarted,
		RequestID: req.ID, Provider: b.providerName, Model: req.Options.Model})

	b.cat.Runner().Run(ctx, req, stages)

	// Release any single-flight cache reservation this run led, whatever
	// the outcome, so waiters behind the same fingerprint wake up.
	if key, ok := req.Private(catalog.PrivateCacheReservation); ok {
		if cache := b.cat.Cache(); cache != nil {
			cache.Release(key.(string))
		}
	}

	if le := req.FirstError(); le != nil {
		b.cat.Emit(ctx, observability.Event{Kind: observability.EventRequestFailed,
			RequestID: req.ID, Provider: b.providerName, Model: req.Options.Model,
			LatencyMs: time.Since(start).Milliseconds(), Err: le})
		return nil, le
	}

	resp, _ := req.Result().(*provider.LLMResponse)
	ev := observability.Event{Kind: observability.EventRequestCompleted,
		RequestID: req.ID, Provider: b.providerName, Model: req.Options.Model,
		LatencyMs: time.Since(start).Milliseconds()}
	if resp != nil {
		ev.Model = resp.Model
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.Cost = resp.Cost
	}
	if hit, ok := req.Assigns(catalog.AssignCacheHit); ok && hit == true {
		ev.CacheHit = true
	}
	b.cat.Emit(ctx, ev)
	return resp, nil
}
