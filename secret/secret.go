// Package secret resolves API keys and other sensitive configuration
// values through a pluggable scheme, grounded on the teacher's
// internal/secret package.
package secret

import (
	"context"
	"fmt"
	"strings"
)

// Provider resolves one secret-reference scheme ("env://", "vault://",
// ...). FetchConfiguration dispatches to the scheme named in a
// Deployment's api_key_ref.
type Provider interface {
	// Scheme names the reference prefix this provider handles, without
	// the "://" separator (e.g. "env", "vault").
	Scheme() string

	// Resolve returns the secret value for ref (the part of the
	// reference after "scheme://").
	Resolve(ctx context.Context, ref string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Resolver dispatches a "scheme://path" reference to the registered
// Provider for scheme. A bare value with no "://" is returned unchanged,
// letting callers pass a literal key straight through.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver builds a Resolver from the given Providers, keyed by their
// own Scheme().
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Scheme()] = p
	}
	return r
}

// Resolve dispatches ref to its scheme's Provider.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, rest, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}
	p, ok := r.providers[scheme]
	if !ok {
		return "", fmt.Errorf("secret: no provider registered for scheme %q", scheme)
	}
	return p.Resolve(ctx, rest)
}

// Close closes every registered provider, collecting the first error.
func (r *Resolver) Close() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
