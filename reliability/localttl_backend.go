package reliability

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalTTLBackend is an alternate in-process Backend built on
// patrickmn/go-cache's sweep-based expiration, distinct from MemoryBackend's
// heap-based eviction — demonstrating the storage contract is genuinely
// pluggable across unrelated eviction strategies.
type LocalTTLBackend struct {
	c *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLocalTTLBackend builds a LocalTTLBackend with the given default
// expiration and sweep interval.
func NewLocalTTLBackend(defaultExpiration, cleanupInterval time.Duration) *LocalTTLBackend {
	return &LocalTTLBackend{c: gocache.New(defaultExpiration, cleanupInterval)}
}

func (b *LocalTTLBackend) Init(ctx context.Context) error { return nil }

func (b *LocalTTLBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := b.c.Get(key)
	if !ok {
		b.misses.Add(1)
		return nil, false, nil
	}
	b.hits.Add(1)
	return v.([]byte), true, nil
}

func (b *LocalTTLBackend) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	b.c.Set(key, value, ttl)
	return nil
}

func (b *LocalTTLBackend) Delete(ctx context.Context, key string) error {
	b.c.Delete(key)
	return nil
}

func (b *LocalTTLBackend) Clear(ctx context.Context) error {
	b.c.Flush()
	return nil
}

func (b *LocalTTLBackend) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	items := b.c.Items()
	keys := make([]string, 0, len(items))
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range items {
		if pattern == "" || pattern == "*" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *LocalTTLBackend) Info(ctx context.Context) (BackendInfo, error) {
	return BackendInfo{Name: "local_ttl", Entries: int64(b.c.ItemCount()), Hits: b.hits.Load(), Misses: b.misses.Load()}, nil
}
