package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTTLBackend_PutGetExpire(t *testing.T) {
	b := NewLocalTTLBackend(time.Minute, time.Minute)
	ctx := context.Background()

	_, hit, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, b.Put(ctx, "k", []byte("v"), time.Now().Add(20*time.Millisecond)))
	v, hit, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "v", string(v))

	time.Sleep(30 * time.Millisecond)
	_, hit, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryBackend_ListKeysAndInfo(t *testing.T) {
	b := NewMemoryBackend(0)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "chat:a", []byte("1"), time.Now().Add(time.Minute)))
	require.NoError(t, b.Put(ctx, "chat:b", []byte("2"), time.Now().Add(time.Minute)))
	require.NoError(t, b.Put(ctx, "other", []byte("3"), time.Now().Add(time.Minute)))

	keys, err := b.ListKeys(ctx, "chat:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	info, err := b.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Entries)
}

func TestCache_ReserveReleaseWakesWaiters(t *testing.T) {
	c := NewCache(NewMemoryBackend(0), time.Minute)

	leader, _ := c.Reserve("k")
	require.True(t, leader)

	follower, done := c.Reserve("k")
	require.False(t, follower)

	woke := make(chan struct{})
	go func() {
		<-done
		close(woke)
	}()

	c.Release("k")
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Release")
	}

	// Release is idempotent and the slot is reusable.
	c.Release("k")
	leader, _ = c.Reserve("k")
	assert.True(t, leader)
	c.Release("k")
}
