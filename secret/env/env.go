// Package env implements secret.Provider over plain environment variables.
package env

import (
	"context"
	"fmt"
	"os"
)

// Provider resolves "env://VAR_NAME" references.
type Provider struct{}

// New builds an env Provider.
func New() *Provider { return &Provider{} }

func (p *Provider) Scheme() string { return "env" }

func (p *Provider) Resolve(ctx context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("env: variable %q not set", ref)
	}
	return v, nil
}

func (p *Provider) Close() error { return nil }
