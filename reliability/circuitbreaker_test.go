package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestBreakers_OpensAfterThreshold(t *testing.T) {
	var events []Event
	b := NewBreakers(CircuitConfig{
		FailureThreshold: 3, SuccessThreshold: 2,
		ResetTimeout: 50 * time.Millisecond, CallTimeout: time.Second,
	}, func(e Event) { events = append(events, e) })

	for i := 0; i < 3; i++ {
		err := b.Call(context.Background(), "svc", func(ctx context.Context) error {
			return errors.New("boom")
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, b.GetStats("svc").State)

	err := b.Call(context.Background(), "svc", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakers_HalfOpenRecovers(t *testing.T) {
	b := NewBreakers(CircuitConfig{
		FailureThreshold: 1, SuccessThreshold: 2,
		ResetTimeout: 10 * time.Millisecond, CallTimeout: time.Second,
	}, nil)

	require.Error(t, b.Call(context.Background(), "svc", func(ctx context.Context) error {
		return errors.New("boom")
	}))
	assert.Equal(t, StateOpen, b.GetStats("svc").State)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Call(context.Background(), "svc", func(ctx context.Context) error { return nil }))
	assert.Equal(t, StateHalfOpen, b.GetStats("svc").State)

	require.NoError(t, b.Call(context.Background(), "svc", func(ctx context.Context) error { return nil }))
	assert.Equal(t, StateClosed, b.GetStats("svc").State)
}

func TestBreakers_CallTimeout(t *testing.T) {
	b := NewBreakers(CircuitConfig{
		FailureThreshold: 5, SuccessThreshold: 1,
		ResetTimeout: time.Second, CallTimeout: 10 * time.Millisecond,
	}, nil)

	err := b.Call(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Error(t, err)
	assert.Equal(t, 1, b.GetStats("slow").FailureCount)
}

func TestBreakers_UpdateConfigValidatesAndRollsBack(t *testing.T) {
	b := NewBreakers(DefaultCircuitConfig(), nil)

	err := b.UpdateConfig("svc", CircuitConfig{FailureThreshold: 0})
	assert.Error(t, err)

	original := b.GetStats("svc").Config
	require.NoError(t, b.UpdateConfig("svc", CircuitConfig{
		FailureThreshold: 9, SuccessThreshold: 9, ResetTimeout: time.Minute, CallTimeout: time.Minute,
	}))
	assert.Equal(t, 9, b.GetStats("svc").Config.FailureThreshold)

	require.NoError(t, b.RollbackConfig("svc"))
	assert.Equal(t, original, b.GetStats("svc").Config)
}

func TestBreakers_Reset(t *testing.T) {
	b := NewBreakers(CircuitConfig{
		FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Minute, CallTimeout: time.Second,
	}, nil)
	require.Error(t, b.Call(context.Background(), "svc", func(ctx context.Context) error { return errors.New("x") }))
	assert.Equal(t, StateOpen, b.GetStats("svc").State)

	b.Reset("svc")
	assert.Equal(t, StateClosed, b.GetStats("svc").State)
}
