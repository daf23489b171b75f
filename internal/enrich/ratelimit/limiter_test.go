package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitThrottlesPerHost(t *testing.T) {
	// 10 RPS with burst 1: the second request on the same host waits ~100ms.
	l := New(Config{RPS: 10, Burst: 1})

	require.NoError(t, l.Wait(t.Context(), "https://example.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(t.Context(), "https://example.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitIsIndependentAcrossHosts(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})

	start := time.Now()
	require.NoError(t, l.Wait(t.Context(), "https://one.example.com"))
	require.NoError(t, l.Wait(t.Context(), "https://two.example.com"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitUnlimitedByDefault(t *testing.T) {
	l := New(Config{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(t.Context(), "https://example.com"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(Config{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(t.Context(), "https://example.com"))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://example.com"))
}

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.Wait(t.Context(), "https://example.com"))
}
