package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisBackend, grounded on caches/redis/redis.go
// in the teacher, narrowed to the single-node case the core ships.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Namespace    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	return c
}

// RedisBackend implements Backend over a redis/go-redis/v9 client,
// satisfying the storage backend contract over a remote KV store.
type RedisBackend struct {
	client    goredis.UniversalClient
	namespace string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisBackend builds a RedisBackend from cfg. Passing an already
// constructed client (e.g. one pointed at a miniredis instance in tests)
// is done via NewRedisBackendWithClient.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	cfg = cfg.withDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr: cfg.Addr,
		Password: cfg.Password,
		DB: cfg.DB,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize: cfg.PoolSize,
	})
	return &RedisBackend{client: client, namespace: cfg.Namespace}, nil
}

// NewRedisBackendWithClient wraps an already-configured client (used by
// tests against an in-process miniredis server).
func NewRedisBackendWithClient(client goredis.UniversalClient, namespace string) *RedisBackend {
	return &RedisBackend{client: client, namespace: namespace}
}

func (b *RedisBackend) prefixed(key string) string {
	if b.namespace == "" {
		return key
	}
	return b.namespace + ":" + key
}

func (b *RedisBackend) Init(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.prefixed(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			b.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	b.hits.Add(1)
	return val, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := b.client.Set(ctx, b.prefixed(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.prefixed(key)).Err()
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	pattern := b.prefixed("*")
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := b.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (b *RedisBackend) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	var keys []string
	iter := b.client.Scan(ctx, 0, b.prefixed(pattern), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (b *RedisBackend) Info(ctx context.Context) (BackendInfo, error) {
	keys, err := b.ListKeys(ctx, "*")
	if err != nil {
		return BackendInfo{}, err
	}
	return BackendInfo{Name: "redis", Entries: int64(len(keys)), Hits: b.hits.Load(), Misses: b.misses.Load()}, nil
}
