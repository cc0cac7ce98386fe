package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{"", &SimpleRateLimiter{}},
		{KindJitter, &SimpleRateLimiter{}},
		{KindAdaptive, &AdaptiveRateLimiter{}},
		{KindToken, &TokenBucketRateLimiter{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			l, err := New(tt.kind, 0, 0)
			require.NoError(t, err)
			assert.IsType(t, tt.want, l)
		})
	}

	_, err := New("leaky", 0, 0)
	assert.Error(t, err)

	_, err = New(KindJitter, -time.Second, 0)
	assert.Error(t, err)
}

func TestSimpleRateLimiterZeroDelay(t *testing.T) {
	l := NewSimpleRateLimiter(0, 0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSimpleRateLimiterSpacesCalls(t *testing.T) {
	l := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiterCancelled(t *testing.T) {
	l := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.Equal(t, 2*time.Second, min, "never relaxes below the initial minimum")
}

func TestAdaptiveRateLimiterFromZero(t *testing.T) {
	a := NewAdaptiveRateLimiter(0, 0)
	for i := 0; i < 10; i++ {
		a.RecordSuccess()
	}
	min, _ := a.Delays()
	assert.Zero(t, min)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delays()
	assert.Equal(t, time.Second, min)
	assert.Equal(t, time.Second, max)
}

func TestTokenBucketRateLimiter(t *testing.T) {
	l := NewTokenBucketRateLimiter(0, 1)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}

	slow := NewTokenBucketRateLimiter(time.Hour, 1)
	require.NoError(t, slow.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.Wait(ctx))
}
