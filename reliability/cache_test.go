package reliability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableAndSensitive(t *testing.T) {
	a := Fingerprint(FingerprintInput{Provider: "openai", Model: "gpt-test", NormalizedMessage: []byte(`[{"role":"user"}]`)})
	b := Fingerprint(FingerprintInput{Provider: "openai", Model: "gpt-test", NormalizedMessage: []byte(`[{"role":"user"}]`)})
	c := Fingerprint(FingerprintInput{Provider: "openai", Model: "gpt-other", NormalizedMessage: []byte(`[{"role":"user"}]`)})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestMemoryBackend_PutGetExpire(t *testing.T) {
	b := NewMemoryBackend(0)
	ctx := context.Background()

	_, hit, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, b.Put(ctx, "k", []byte("v"), time.Now().Add(10*time.Millisecond)))
	v, hit, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "v", string(v))

	time.Sleep(20 * time.Millisecond)
	_, hit, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisBackend_PutGetDelete(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendWithClient(client, "test")
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "k", []byte("v"), time.Now().Add(time.Minute)))
	v, hit, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "v", string(v))

	require.NoError(t, backend.Delete(ctx, "k"))
	_, hit, err = backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_BuildSingleFlight(t *testing.T) {
	c := NewCache(NewMemoryBackend(0), time.Minute)

	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]string, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Build(context.Background(), "shared-key", func(ctx context.Context) ([]byte, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return []byte("built"), nil
			})
			require.NoError(t, err)
			results[i] = string(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "built", r)
	}
}

func TestCache_StoreRespectsDisabledPolicy(t *testing.T) {
	backend := NewMemoryBackend(0)
	c := NewCache(backend, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "k", []byte("v"), TTLPolicy{Disabled: true}))
	_, hit, err := c.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestDualBackend_BackfillsLocalOnSharedHit(t *testing.T) {
	local := NewMemoryBackend(0)
	shared := NewMemoryBackend(0)
	dual := NewDualBackend(local, shared)
	ctx := context.Background()

	require.NoError(t, shared.Put(ctx, "k", []byte("v"), time.Now().Add(time.Minute)))

	_, hit, err := local.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, hit)

	v, hit, err := dual.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "v", string(v))

	_, hit, err = local.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit, "dual.Get should have backfilled local")
}
