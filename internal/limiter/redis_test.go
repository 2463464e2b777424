package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisLimiter(t *testing.T, limit int, window time.Duration) (*miniredis.Miniredis, *RedisLimiter) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rl, err := NewRedisLimiter(RedisConfig{
		Addr:   mr.Addr(),
		Window: window,
		Limit:  limit,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rl.Close() })

	return mr, rl
}

func TestNewRedisLimiter_BadConfig(t *testing.T) {
	_, err := NewRedisLimiter(RedisConfig{Addr: "localhost:0", Window: 0, Limit: 10}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRedisLimiter_Unreachable(t *testing.T) {
	_, err := NewRedisLimiter(RedisConfig{
		Addr:   "127.0.0.1:1",
		Window: time.Second,
		Limit:  10,
	}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisLimiter_WithinLimit(t *testing.T) {
	_, rl := setupRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "client-a"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow(ctx, "client-a"))
}

func TestRedisLimiter_ClientsIsolated(t *testing.T) {
	_, rl := setupRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "client-a"))
	assert.False(t, rl.Allow(ctx, "client-a"))
	assert.True(t, rl.Allow(ctx, "client-b"))
}

func TestRedisLimiter_FailOpen(t *testing.T) {
	mr, rl := setupRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "client-a"))
	mr.Close()
	// Redis gone: requests are admitted rather than dropped.
	assert.True(t, rl.Allow(ctx, "client-a"))
}
