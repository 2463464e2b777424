package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlimited(t *testing.T) {
	l := Unlimited{}
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(context.Background(), "anyone"))
	}
}

func TestTokenBucket_BurstThenReject(t *testing.T) {
	// 1 rps, burst of 3: first three pass, fourth is rejected.
	tb := NewTokenBucket(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(ctx, "client-a"), "request %d should pass", i)
	}
	assert.False(t, tb.Allow(ctx, "client-a"))
}

func TestTokenBucket_ClientsIsolated(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	ctx := context.Background()

	assert.True(t, tb.Allow(ctx, "client-a"))
	assert.False(t, tb.Allow(ctx, "client-a"))
	// A different client has its own bucket.
	assert.True(t, tb.Allow(ctx, "client-b"))
}

func TestTokenBucket_Refill(t *testing.T) {
	tb := NewTokenBucket(50, 1)
	ctx := context.Background()

	assert.True(t, tb.Allow(ctx, "client-a"))
	assert.False(t, tb.Allow(ctx, "client-a"))

	time.Sleep(40 * time.Millisecond) // 50 rps refills within ~20ms
	assert.True(t, tb.Allow(ctx, "client-a"))
}

func TestTokenBucket_MinimumBurst(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	assert.True(t, tb.Allow(context.Background(), "client-a"))
}

func TestTokenBucket_IdleEviction(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	tb.maxIdle = 10 * time.Millisecond
	ctx := context.Background()

	tb.Allow(ctx, "client-a")
	time.Sleep(20 * time.Millisecond)
	// Touching another client past the scan interval triggers eviction.
	tb.Allow(ctx, "client-b")

	tb.mu.Lock()
	_, ok := tb.visitors["client-a"]
	tb.mu.Unlock()
	assert.False(t, ok, "idle visitor should be evicted")
}
