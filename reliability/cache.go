package reliability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Backend is the pluggable storage contract calls out: "a thin facade
// delegating to a pluggable storage backend... suitable for any backend:
// in-memory table, disk, remote KV." Grounded on the teacher's cache.Cache
// interface, narrowed to the init/get/put/delete/clear/list_keys/info shape
// names explicitly.
type Backend interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, key string) (value []byte, hit bool, err error)
	Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	ListKeys(ctx context.Context, pattern string) ([]string, error)
	Info(ctx context.Context) (BackendInfo, error)
}

// BackendInfo is the result of Backend.Info.
type BackendInfo struct {
	Name    string
	Entries int64
	Hits    int64
	Misses  int64
}

// FingerprintInput is the material a Cache key is derived from (Cache
// Entry: "a stable fingerprint of (provider, model, normalized_messages,
// options_subset)").
type FingerprintInput struct {
	Provider          string
	Model             string
	NormalizedMessage json.RawMessage
	OptionsSubset     json.RawMessage
}

// Fingerprint computes the stable cache key for an input, grounded on the
// teacher's DefaultKeyGenerator (SHA-256 over a deterministic string
// encoding of the cacheable fields).
func Fingerprint(in FingerprintInput) string {
	h := sha256.New()
	h.Write([]byte("provider:"))
	h.Write([]byte(in.Provider))
	h.Write([]byte("|model:"))
	h.Write([]byte(in.Model))
	h.Write([]byte("|messages:"))
	h.Write(in.NormalizedMessage)
	h.Write([]byte("|options:"))
	h.Write(in.OptionsSubset)
	return hex.EncodeToString(h.Sum(nil))
}

// TTLPolicy resolves the TTL to store a cache entry with. Disabled means
// the caller opted out; a zero TTL with
// Disabled == false means "use the facade default".
type TTLPolicy struct {
	Disabled bool
	TTL      time.Duration
}

// Cache is the HTTP Cache facade. It owns the bypass decision, the
// fingerprint computation, and the at-most-one-concurrent-build guarantee;
// storage itself is delegated entirely to Backend.
type Cache struct {
	backend    Backend
	defaultTTL time.Duration

	inflightMu sync.Mutex
	inflight   map[string]*buildGroup
}

type buildGroup struct {
	done chan struct{}
	val  []byte
	err  error
}

// NewCache wraps backend in the facade. defaultTTL is used when a caller
// doesn't specify one and the policy doesn't disable caching.
func NewCache(backend Backend, defaultTTL time.Duration) *Cache {
	return &Cache{backend: backend, defaultTTL: defaultTTL, inflight: make(map[string]*buildGroup)}
}

func (c *Cache) Init(ctx context.Context) error { return c.backend.Init(ctx) }

// Lookup consults the backend for key. A miss or an expired entry both
// report hit == false; the backend contract promises Get itself already
// applies expiry.
func (c *Cache) Lookup(ctx context.Context, key string) (value []byte, hit bool, err error) {
	return c.backend.Get(ctx, key)
}

// Store persists value under key with the resolved TTL.
func (c *Cache) Store(ctx context.Context, key string, value []byte, policy TTLPolicy) error {
	if policy.Disabled {
		return nil
	}
	ttl := policy.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.backend.Put(ctx, key, value, time.Now().Add(ttl))
}

func (c *Cache) Delete(ctx context.Context, key string) error { return c.backend.Delete(ctx, key) }
func (c *Cache) Clear(ctx context.Context) error { return c.backend.Clear(ctx) }
func (c *Cache) Info(ctx context.Context) (BackendInfo, error) { return c.backend.Info(ctx) }

// Reserve claims the build slot for key. The first caller becomes the
// leader (leader == true) and must call Release when its build settles,
// success or failure; later callers get leader == false plus a channel
// that closes on that Release, after which they should re-Lookup.
func (c *Cache) Reserve(key string) (leader bool, done <-chan struct{}) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if g, ok := c.inflight[key]; ok {
		return false, g.done
	}
	g := &buildGroup{done: make(chan struct{})}
	c.inflight[key] = g
	return true, g.done
}

// Release frees the reservation for key, waking every waiter. Idempotent.
func (c *Cache) Release(key string) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if g, ok := c.inflight[key]; ok {
		close(g.done)
		delete(c.inflight, key)
	}
}

// Build implements the at-most-one-concurrent-build guarantee: for a
// given key, only one caller executes fn; concurrent callers for the same
// key block on and receive that call's result. Backends with their own
// atomic reservation can bypass this by calling Store/Lookup directly; this
// is the "short-lived local lock table" fallback allows.
func (c *Cache) Build(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	c.inflightMu.Lock()
	if g, ok := c.inflight[key]; ok {
		c.inflightMu.Unlock()
		<-g.done
		return g.val, g.err
	}
	g := &buildGroup{done: make(chan struct{})}
	c.inflight[key] = g
	c.inflightMu.Unlock()

	g.val, g.err = fn(ctx)
	close(g.done)

	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()

	return g.val, g.err
}
