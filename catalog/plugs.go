package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/observability"
	"github.com/llmcore/llmcore/plug"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/reliability"
	"github.com/llmcore/llmcore/request"
)

// Stage names. insert_before/insert_after/replace target stages by these.
const (
	PlugValidateProvider   = "validate_provider"
	PlugFetchConfiguration = "fetch_configuration"
	PlugManageContext      = "manage_context"
	PlugCacheLookup        = "cache_lookup"
	PlugCircuitBreaker     = "circuit_breaker"
	PlugBuildRequest       = "build_request"
	PlugExecuteRequest     = "execute_request"
	PlugParseResponse      = "parse_response"
	PlugTrackCost          = "track_cost"
	PlugCacheStore         = "cache_store"
)

// Assign keys published by the built-in plugs.
const (
	AssignDeployment      = "deployment"
	AssignRequestURL      = "request_url"
	AssignRequestHeaders  = "request_headers"
	AssignRequestBody     = "request_body"
	AssignTimeout         = "timeout"
	AssignHTTPRequest     = "http_request"
	AssignHTTPStatus      = "http_status"
	AssignHTTPBody        = "http_body"
	AssignLLMResponse     = "llm_response"
	AssignFingerprint     = "fingerprint"
	AssignCacheHit        = "cache_hit"
	AssignLatencyMillis   = "latency_ms"
	AssignMessagesPreTrim = "messages_pre_trim"
)

// PrivateStreamCallback is the private key the builder's stream path
// parks the user callback under for ExecuteRequest to pick up.
const PrivateStreamCallback = "stream_callback"

// PrivateCacheReservation holds the fingerprint this request leads the
// single-flight build for. The builder releases it when the run settles,
// so an error path never strands waiters.
const PrivateCacheReservation = "cache_reservation"

// CacheOptions configures the two cache stages.
type CacheOptions struct {
	TTL         time.Duration
	Disabled    bool
	Fingerprint FingerprintPolicy
}

type validateProvider struct{ c *Catalog }

// ValidateProvider asserts the request's provider is registered,
// failing fast with unknown_provider before any I/O.
func (c *Catalog) ValidateProvider() plug.Plug { return validateProvider{c} }

func (p validateProvider) Name() string { return PlugValidateProvider }

func (p validateProvider) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	if _, ok := p.c.Get(req.Provider); !ok {
		return req, &llmerrors.LLMError{Kind: llmerrors.KindUnknownProvider, Provider: req.Provider,
			Message: "provider " + req.Provider + " is not registered"}
	}
	return req, nil
}

type fetchConfiguration struct{ c *Catalog }

// FetchConfiguration resolves API key, base URL, and default model from
// the config provider and publishes the resulting Deployment.
func (c *Catalog) FetchConfiguration() plug.Plug { return fetchConfiguration{c} }

func (p fetchConfiguration) Name() string { return PlugFetchConfiguration }

func (p fetchConfiguration) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	entry, _ := p.c.Get(req.Provider)

	cfg, ok := p.c.config.Provider(req.Provider)
	if !ok {
		return req, &llmerrors.LLMError{Kind: llmerrors.KindConfigMissing, Provider: req.Provider,
			Message: "no configuration for provider " + req.Provider}
	}

	apiKey, err := p.c.secrets.Resolve(ctx, cfg.APIKey)
	if err != nil {
		return req, &llmerrors.LLMError{Kind: llmerrors.KindAPIKeyMissing, Provider: req.Provider,
			Message: "resolving api key: " + err.Error(), Err: err}
	}
	if apiKey == "" {
		return req, &llmerrors.LLMError{Kind: llmerrors.KindAPIKeyMissing, Provider: req.Provider,
			Message: "empty api key for provider " + req.Provider}
	}

	model := req.Options.Model
	if model == "" {
		model = cfg.DefaultModel
	}
	if model == "" && entry != nil {
		model = entry.DefaultModel
	}
	req.Options.Model = model

	defaults := p.c.Defaults()
	timeout := req.Options.TimeoutMillis
	if timeout <= 0 {
		timeout = defaults.TimeoutMillis
	}

	headers := map[string]string{}
	if cfg.AppName != "" {
		headers["X-Title"] = cfg.AppName
	}
	if cfg.AppURL != "" {
		headers["HTTP-Referer"] = cfg.AppURL
	}

	req.Assign(AssignDeployment, provider.Deployment{
		ID:            req.Provider + "/" + model,
		ProviderName:  req.Provider,
		ModelName:     model,
		BaseURL:       cfg.BaseURL,
		APIKey:        apiKey,
		TimeoutMillis: timeout,
		Headers:       headers,
	})
	return req, nil
}

type manageContext struct{ c *Catalog }

// ManageContext applies a context strategy, trimming messages when the
// estimated token count exceeds the configured window. The trimmed list
// becomes canonical for everything downstream, including the cache
// fingerprint.
func (c *Catalog) ManageContext() plug.Plug { return manageContext{c} }

func (p manageContext) Name() string { return PlugManageContext }

func (p manageContext) Call(ctx context.Context, req *request.Request, opts any) (*request.Request, error) {
	co, ok := opts.(ContextOptions)
	if !ok || co.MaxTokens <= 0 {
		return req, nil
	}

	trimmed := applyContextStrategy(p.c.countTokens, req.Options.Model, req.Messages, co)
	if len(trimmed) != len(req.Messages) {
		req.Assign(AssignMessagesPreTrim, req.Messages)
		p.c.logger.Debug("context strategy trimmed messages",
			"request_id", req.ID, "strategy", string(co.Strategy),
			"before", len(req.Messages), "after", len(trimmed))
		req.Messages = trimmed
	}
	return req, nil
}

type cacheLookup struct{ c *Catalog }

// CacheLookup computes the fingerprint and, on a backend hit, sets the
// cached response as the result and halts the pipeline.
func (c *Catalog) CacheLookup() plug.Plug { return cacheLookup{c} }

func (p cacheLookup) Name() string { return PlugCacheLookup }

func (p cacheLookup) Call(ctx context.Context, req *request.Request, opts any) (*request.Request, error) {
	co, _ := opts.(CacheOptions)
	if p.cacheBypassed(req, co) {
		return req, nil
	}

	key, err := p.c.fingerprintFor(req, co)
	if err != nil {
		// A fingerprint failure downgrades to a cache miss; it never
		// fails the request.
		p.c.logger.Warn("cache fingerprint failed", "request_id", req.ID, "error", err)
		return req, nil
	}
	req.Assign(AssignFingerprint, key)

	raw, hit, err := p.c.cache.Lookup(ctx, key)
	if err != nil {
		p.c.logger.Warn("cache lookup failed", "request_id", req.ID, "error", err)
		return req, nil
	}
	if !hit {
		raw, hit = p.awaitOrLead(ctx, req, key)
	}
	if !hit {
		p.c.Emit(ctx, observability.Event{Kind: observability.EventCacheMiss,
			RequestID: req.ID, Provider: req.Provider, Model: req.Options.Model})
		return req, nil
	}

	var resp provider.LLMResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		p.c.logger.Warn("cache entry corrupt, treating as miss", "request_id", req.ID, "error", err)
		_ = p.c.cache.Delete(ctx, key)
		return req, nil
	}

	p.c.Emit(ctx, observability.Event{Kind: observability.EventCacheHit,
		RequestID: req.ID, Provider: req.Provider, Model: req.Options.Model, CacheHit: true})
	req.Assign(AssignCacheHit, true)
	req.Assign(AssignLLMResponse, &resp)
	req.HaltWithResult(&resp)
	return req, nil
}

// awaitOrLead enforces the at-most-one-concurrent-build guarantee: the
// first request for a fingerprint leads (and records the reservation for
// the builder to release when the run settles); later requests wait for
// the leader, then re-consult the backend.
func (p cacheLookup) awaitOrLead(ctx context.Context, req *request.Request, key string) (raw []byte, hit bool) {
	leader, done := p.c.cache.Reserve(key)
	if leader {
		req.PutPrivate(PrivateCacheReservation, key)
		return nil, false
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, false
	}

	raw, hit, err := p.c.cache.Lookup(ctx, key)
	if err != nil || !hit {
		// The leader failed or skipped the store; proceed as a miss
		// without re-reserving, accepting a burst of builds over a
		// convoy behind a failing upstream.
		return nil, false
	}
	return raw, true
}

// cacheBypassed applies the facade's bypass rules: no cache configured,
// caller opted out, or the operation is non-idempotent (streaming,
// tool-executing).
func (p cacheLookup) cacheBypassed(req *request.Request, co CacheOptions) bool {
	return cacheBypassed(p.c, req, co)
}

func cacheBypassed(c *Catalog, req *request.Request, co CacheOptions) bool {
	if c.cache == nil || co.Disabled {
		return true
	}
	if req.Options.Stream {
		return true
	}
	if len(req.Options.Tools) > 0 {
		return true
	}
	if req.Options.Cache != nil && req.Options.Cache.Disabled {
		return true
	}
	return false
}

// fingerprintFor honors the entry's fingerprint policy: the default uses
// the post-trim messages already on req; FingerprintPreTrim restores the
// original list for identity purposes.
func (c *Catalog) fingerprintFor(req *request.Request, co CacheOptions) (string, error) {
	if co.Fingerprint == FingerprintPreTrim {
		if v, ok := req.Assigns(AssignMessagesPreTrim); ok {
			if pre, ok := v.([]request.Message); ok {
				return fingerprintParts(req.Provider, pre, req.Options)
			}
		}
	}
	return fingerprintRequest(req)
}

type circuitBreaker struct{ c *Catalog }

// CircuitBreakerPlug consults the named circuit before any network I/O,
// failing fast with circuit_open. Placed after CacheLookup so cache hits
// never consume breaker budget; the call outcome is recorded by
// ExecuteRequest.
func (c *Catalog) CircuitBreakerPlug() plug.Plug { return circuitBreaker{c} }

func (p circuitBreaker) Name() string { return PlugCircuitBreaker }

func (p circuitBreaker) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	if p.c.breakers == nil {
		return req, nil
	}
	name := circuitName(req)
	if !p.c.breakers.Allow(name) {
		p.c.Emit(ctx, observability.Event{Kind: observability.EventCircuitEvent,
			RequestID: req.ID, Provider: req.Provider, Model: req.Options.Model,
			Detail: "rejected: circuit " + name + " open"})
		return req, &llmerrors.LLMError{Kind: llmerrors.KindCircuitOpen, Provider: req.Provider,
			Model: req.Options.Model, Message: "circuit " + name + " is open"}
	}
	return req, nil
}

func circuitName(req *request.Request) string {
	return req.Provider + "/" + req.Options.Model
}

type buildRequest struct{ c *Catalog }

// BuildRequestPlug delegates to the provider adapter's wire-format
// builder and publishes request_url/request_headers/request_body/timeout.
func (c *Catalog) BuildRequestPlug() plug.Plug { return buildRequest{c} }

func (p buildRequest) Name() string { return PlugBuildRequest }

func (p buildRequest) Hint() plug.Hint {
	return plug.Hint{
		Reads:  []string{AssignDeployment},
		Writes: []string{AssignHTTPRequest, AssignRequestURL, AssignRequestHeaders, AssignRequestBody, AssignTimeout},
	}
}

func (p buildRequest) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	entry, ok := p.c.Get(req.Provider)
	if !ok {
		return req, &llmerrors.LLMError{Kind: llmerrors.KindUnknownProvider, Provider: req.Provider,
			Message: "provider " + req.Provider + " is not registered"}
	}
	dep, ok := deploymentOf(req)
	if !ok {
		return req, llmerrors.PlugException(PlugBuildRequest, "no deployment assigned; FetchConfiguration must run first")
	}

	httpReq, err := entry.Provider.BuildRequest(ctx, req, dep)
	if err != nil {
		return req, llmerrors.Wrap(llmerrors.KindInvalidMessages, "building provider request", err)
	}

	req.Assign(AssignHTTPRequest, httpReq)
	req.Assign(AssignRequestURL, httpReq.URL.String())
	req.Assign(AssignRequestHeaders, httpReq.Header.Clone())
	req.Assign(AssignTimeout, time.Duration(dep.TimeoutMillis)*time.Millisecond)
	if httpReq.GetBody != nil {
		if rc, err := httpReq.GetBody(); err == nil {
			body, _ := io.ReadAll(rc)
			rc.Close()
			req.Assign(AssignRequestBody, body)
		}
	}
	return req, nil
}

func deploymentOf(req *request.Request) (provider.Deployment, bool) {
	v, ok := req.Assigns(AssignDeployment)
	if !ok {
		return provider.Deployment{}, false
	}
	dep, ok := v.(provider.Deployment)
	return dep, ok
}

type executeRequest struct{ c *Catalog }

// ExecuteRequestPlug issues the HTTP call, records the outcome on the
// named circuit, and — for stream pipelines — hands the response body off
// to the Streaming Coordinator.
func (c *Catalog) ExecuteRequestPlug() plug.Plug { return executeRequest{c} }

func (p executeRequest) Name() string { return PlugExecuteRequest }

func (p executeRequest) Hint() plug.Hint {
	return plug.Hint{
		Reads:  []string{AssignHTTPRequest, AssignDeployment, AssignTimeout},
		Writes: []string{AssignHTTPStatus, AssignHTTPBody, AssignLatencyMillis},
	}
}

func (p executeRequest) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	v, ok := req.Assigns(AssignHTTPRequest)
	if !ok {
		return req, llmerrors.PlugException(PlugExecuteRequest, "no http request assigned; BuildRequest must run first")
	}
	httpReq := v.(*http.Request)
	dep, _ := deploymentOf(req)
	name := circuitName(req)
	defaults := p.c.Defaults()

	callCtx := ctx
	if timeout, ok := req.Assigns(AssignTimeout); ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout.(time.Duration))
		defer cancel()
	}

	if p.c.breakers != nil && defaults.RequestsPerSecond > 0 {
		limiter := p.c.breakers.Limiter(name, defaults.RequestsPerSecond, defaults.Burst)
		if err := limiter.Wait(callCtx); err != nil {
			return req, &llmerrors.LLMError{Kind: llmerrors.KindTimeout, Provider: req.Provider,
				Model: req.Options.Model, Message: "deadline exceeded waiting for rate limiter", Err: err}
		}
	}

	start := time.Now()
	resp, err := p.c.httpClient.Do(httpReq.WithContext(callCtx))
	if err != nil {
		p.recordFailure(name)
		return req, transportError(callCtx, req, err)
	}

	cb, streamRequested := streamCallback(req)
	if req.Options.Stream && streamRequested {
		return req, p.executeStream(callCtx, req, dep, resp, cb, start)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		p.recordFailure(name)
		return req, transportError(callCtx, req, err)
	}

	req.Assign(AssignHTTPStatus, resp.StatusCode)
	req.Assign(AssignHTTPBody, body)
	req.Assign(AssignLatencyMillis, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.recordFailure(name)
		entry, _ := p.c.Get(req.Provider)
		return req, entry.Provider.MapError(resp.StatusCode, body)
	}

	p.recordSuccess(name)
	return req, nil
}

func (p executeRequest) recordFailure(name string) {
	if p.c.breakers != nil {
		p.c.breakers.RecordFailure(name)
	}
}

func (p executeRequest) recordSuccess(name string) {
	if p.c.breakers != nil {
		p.c.breakers.RecordSuccess(name)
	}
}

func streamCallback(req *request.Request) (streamingCallback, bool) {
	v, ok := req.Private(PrivateStreamCallback)
	if !ok {
		return nil, false
	}
	cb, ok := v.(streamingCallback)
	return cb, ok
}

// transportError classifies a transport failure as timeout vs
// network_error, per the error taxonomy.
func transportError(ctx context.Context, req *request.Request, err error) error {
	kind := llmerrors.KindNetworkError
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = llmerrors.KindTimeout
		msg = "request deadline exceeded"
	}
	return &llmerrors.LLMError{Kind: kind, Provider: req.Provider, Model: req.Options.Model,
		Message: msg, Err: err}
}

type parseResponse struct{ c *Catalog }

// ParseResponsePlug delegates to the provider adapter's response parser
// and records the LLMResponse as the request's result. The completed
// transition itself is the Runner's epilogue, so TrackCost and CacheStore
// still get their turn.
func (c *Catalog) ParseResponsePlug() plug.Plug { return parseResponse{c} }

func (p parseResponse) Name() string { return PlugParseResponse }

func (p parseResponse) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	entry, ok := p.c.Get(req.Provider)
	if !ok {
		return req, &llmerrors.LLMError{Kind: llmerrors.KindUnknownProvider, Provider: req.Provider}
	}

	status, _ := req.Assigns(AssignHTTPStatus)
	rawBody, okBody := req.Assigns(AssignHTTPBody)
	if !okBody {
		// Stream pipelines land here with the result already aggregated
		// by ExecuteRequest; nothing to parse.
		if req.Result() != nil {
			return req, nil
		}
		return req, llmerrors.PlugException(PlugParseResponse, "no http body assigned; ExecuteRequest must run first")
	}

	httpResp := &http.Response{
		StatusCode: status.(int),
		Body:       io.NopCloser(bytes.NewReader(rawBody.([]byte))),
	}
	resp, err := entry.Provider.ParseResponse(httpResp)
	if err != nil {
		return req, llmerrors.Wrap(llmerrors.KindParseFailed, "parsing provider response", err)
	}

	if resp.Model == "" {
		resp.Model = req.Options.Model
	}
	if resp.Metadata.Provider == "" {
		resp.Metadata.Provider = req.Provider
	}

	req.Assign(AssignLLMResponse, resp)
	req.SetResult(resp)
	return req, nil
}

type trackCost struct{ c *Catalog }

// TrackCostPlug looks up pricing by model and fills response.Cost from
// usage. Models with no pricing entry leave Cost nil rather than erroring.
func (c *Catalog) TrackCostPlug() plug.Plug { return trackCost{c} }

func (p trackCost) Name() string { return PlugTrackCost }

func (p trackCost) Call(ctx context.Context, req *request.Request, _ any) (*request.Request, error) {
	resp, ok := responseOf(req)
	if !ok || p.c.pricing == nil {
		return req, nil
	}
	if resp.Usage.InputTokens == 0 && resp.Usage.OutputTokens == 0 {
		return req, nil
	}

	cost, ok := p.c.pricing.Estimate(resp.Model, req.Provider, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if !ok {
		p.c.logger.Debug("no pricing entry for model", "request_id", req.ID, "model", resp.Model)
		return req, nil
	}
	resp.Cost = &cost
	return req, nil
}

func responseOf(req *request.Request) (*provider.LLMResponse, bool) {
	v, ok := req.Assigns(AssignLLMResponse)
	if !ok {
		return nil, false
	}
	resp, ok := v.(*provider.LLMResponse)
	return resp, ok
}

type cacheStore struct{ c *Catalog }

// CacheStorePlug persists the parsed response under the fingerprint with
// the policy TTL. Store failures are logged, never surfaced.
func (c *Catalog) CacheStorePlug() plug.Plug { return cacheStore{c} }

func (p cacheStore) Name() string { return PlugCacheStore }

func (p cacheStore) Call(ctx context.Context, req *request.Request, opts any) (*request.Request, error) {
	co, _ := opts.(CacheOptions)
	if cacheBypassed(p.c, req, co) {
		return req, nil
	}
	if hit, ok := req.Assigns(AssignCacheHit); ok && hit == true {
		return req, nil
	}
	resp, ok := responseOf(req)
	if !ok {
		return req, nil
	}
	key, ok := req.Assigns(AssignFingerprint)
	if !ok {
		return req, nil
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		p.c.logger.Warn("cache store marshal failed", "request_id", req.ID, "error", err)
		return req, nil
	}

	policy := reliability.TTLPolicy{TTL: co.TTL}
	if co.TTL <= 0 {
		policy.TTL = p.c.Defaults().CacheTTL
	}
	if req.Options.Cache != nil && req.Options.Cache.TTLMillis > 0 {
		policy.TTL = time.Duration(req.Options.Cache.TTLMillis) * time.Millisecond
	}
	if err := p.c.cache.Store(ctx, key.(string), raw, policy); err != nil {
		p.c.logger.Warn("cache store failed", "request_id", req.ID, "error", err)
	}
	return req, nil
}
