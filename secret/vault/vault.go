// Package vault implements secret.Provider over HashiCorp Vault, grounded
// on the teacher's internal/secret/vault package.
package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"
)

// Config configures the Vault client and its AppRole login.
type Config struct {
	Address  string
	RoleID   string
	SecretID string
}

// Provider resolves "vault://path/to/secret#key" references (key defaults
// to "value" when omitted). It logs in via AppRole on construction and
// keeps the lease alive for process lifetime.
type Provider struct {
	client *vaultapi.Client
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New logs into Vault with cfg's AppRole credentials and returns a ready
// Provider.
func New(cfg Config) (*Provider, error) {
	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.Address
	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault: create client: %w", err)
	}

	secret, err := client.Logical().Write("auth/approle/login", map[string]any{
		"role_id":   cfg.RoleID,
		"secret_id": cfg.SecretID,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: approle login: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("vault: login returned no auth info")
	}
	client.SetToken(secret.Auth.ClientToken)

	p := &Provider{client: client, stopCh: make(chan struct{})}
	if secret.Auth.Renewable {
		p.wg.Add(1)
		go p.renew(secret.Auth)
	}
	return p, nil
}

func (p *Provider) Scheme() string { return "vault" }

// Resolve reads secretPath from Vault's KV engine (v1 or v2; the v2
// "data" wrapper is unwrapped transparently) and returns the named key.
func (p *Provider) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, hasKey := strings.Cut(ref, "#")
	if !hasKey {
		key = "value"
	}

	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("vault: read %q: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault: secret %q not found", path)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault: key %q not found in %q", key, path)
	}
	return fmt.Sprintf("%v", v), nil
}

func (p *Provider) renew(auth *vaultapi.SecretAuth) {
	defer p.wg.Done()
	watcher, err := p.client.NewLifetimeWatcher(&vaultapi.LifetimeWatcherInput{Secret: &vaultapi.Secret{Auth: auth}})
	if err != nil {
		return
	}
	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-watcher.DoneCh():
			return
		case <-watcher.RenewCh():
		}
	}
}

// Close stops the lease renewer.
func (p *Provider) Close() error {
	close(p.stopCh)
	p.wg.Wait()
	return nil
}
