package catalog

import (
	"time"

	"github.com/llmcore/llmcore/reliability"
	"github.com/llmcore/llmcore/streaming"
)

// ProviderConfig is the per-provider slice of configuration
// FetchConfiguration resolves: credentials, endpoint, model default, and
// the optional app identity some brokers forward upstream.
type ProviderConfig struct {
	// APIKey is either a literal key or a secret reference
	// ("env://OPENAI_API_KEY", "vault://secret/llm#api_key") resolved
	// through the catalog's secret.Resolver.
	APIKey       string
	BaseURL      string
	DefaultModel string
	AppName      string
	AppURL       string
}

// Defaults is the global slice of configuration: timeouts, cache TTL,
// circuit defaults, and stream-recovery policy.
type Defaults struct {
	TimeoutMillis  int64
	CacheTTL       time.Duration
	Circuit        reliability.CircuitConfig
	StreamRecovery streaming.RecoveryPolicy

	// RequestsPerSecond/Burst bound ExecuteRequest fan-out per circuit;
	// zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// ConfigProvider is the external config collaborator. File/env parsing
// into this shape is out of scope; the core only consumes the resolved
// values. Configuration is read-only after process start.
type ConfigProvider interface {
	// Provider returns the configuration for name, reporting ok == false
	// when the provider has no configuration at all.
	Provider(name string) (ProviderConfig, bool)

	// GlobalDefaults returns the process-wide defaults.
	GlobalDefaults() Defaults
}

// StaticConfig is the simplest ConfigProvider: a fixed map built at
// startup. Tests and embedding applications use it directly.
type StaticConfig struct {
	Providers map[string]ProviderConfig
	Global    Defaults
}

func (s *StaticConfig) Provider(name string) (ProviderConfig, bool) {
	cfg, ok := s.Providers[name]
	return cfg, ok
}

func (s *StaticConfig) GlobalDefaults() Defaults { return s.Global }

// withFallbacks fills zero-valued defaults so the plugs never have to
// special-case an empty Defaults.
func (d Defaults) withFallbacks() Defaults {
	if d.TimeoutMillis <= 0 {
		d.TimeoutMillis = 60_000
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = 5 * time.Minute
	}
	if d.Circuit.FailureThreshold <= 0 {
		d.Circuit = reliability.DefaultCircuitConfig()
	}
	return d
}
