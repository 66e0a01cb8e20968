package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenBlock(t *testing.T) {
	l := NewLimiter("test", 60) // 1 rps, burst 6

	for i := 0; i < 6; i++ {
		assert.True(t, l.Allow(), "request %d should fit the burst", i)
	}
	assert.False(t, l.Allow())
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := NewLimiter("test", 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter test")
}

func TestHostLimiters_PerHost(t *testing.T) {
	h := NewHostLimiters(1)
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx, "a.example"))
	require.NoError(t, h.Wait(ctx, "b.example"), "hosts do not share a budget")

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, h.Wait(short, "a.example"))
}

func TestHostLimiters_Disabled(t *testing.T) {
	h := NewHostLimiters(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Wait(context.Background(), "a.example"))
	}

	var nilLimiters *HostLimiters
	assert.NoError(t, nilLimiters.Wait(context.Background(), "a.example"))
}
