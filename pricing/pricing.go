// Package pricing resolves a model's per-token cost so TrackCost can
// attach a dollar estimate to a completed request, grounded on the
// teacher's pkg/pricing/registry.go.
package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

//go:embed data/defaults.json
var defaultPrices []byte

// ModelPrice is one entry of the pricing table: dollars per token, by
// direction, plus the optional cache-aware rates a few providers expose.
type ModelPrice struct {
	Provider               string  `json:"provider"`
	InputCostPerToken      float64 `json:"input_cost_per_token"`
	OutputCostPerToken     float64 `json:"output_cost_per_token"`
	CacheReadCostPerToken  float64 `json:"cache_read_input_token_cost,omitempty"`
	CacheWriteCostPerToken float64 `json:"cache_creation_input_token_cost,omitempty"`
}

// Registry is the process-wide pricing table: embedded defaults, overlaid
// by whatever an operator loads on top via Load.
type Registry struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// NewRegistry builds a Registry seeded from the embedded defaults. A
// malformed embed (which should never happen) degrades to an empty table
// rather than panicking — TrackCost already tolerates unpriced models.
func NewRegistry() *Registry {
	r := &Registry{prices: make(map[string]ModelPrice)}
	_ = r.loadBytes(defaultPrices)
	return r
}

// Load overlays the JSON pricing table at path onto the registry, letting
// an operator add or override entries without a code change.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pricing file: %w", err)
	}
	return r.loadBytes(data)
}

func (r *Registry) loadBytes(data []byte) error {
	var prices map[string]ModelPrice
	if err := json.Unmarshal(data, &prices); err != nil {
		return fmt.Errorf("unmarshal pricing table: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range prices {
		r.prices[k] = v
	}
	return nil
}

// Lookup resolves a price for (model, provider). It tries the
// "provider/model" composite key first, since two providers occasionally
// reuse a bare model name, then falls back to the bare model name.
func (r *Registry) Lookup(model, provider string) (ModelPrice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prices[provider+"/"+model]; ok {
		return p, true
	}
	if p, ok := r.prices[model]; ok {
		return p, true
	}
	return ModelPrice{}, false
}

// Estimate computes the dollar cost of inputTokens/outputTokens against
// model's price, or reports ok == false when the model has no entry —
// TrackCost leaves LLMResponse.Cost nil in that case rather than erroring.
func (r *Registry) Estimate(model, provider string, inputTokens, outputTokens int) (cost float64, ok bool) {
	p, found := r.Lookup(model, provider)
	if !found {
		return 0, false
	}
	return float64(inputTokens)*p.InputCostPerToken + float64(outputTokens)*p.OutputCostPerToken, true
}
