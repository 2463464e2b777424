package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLimiter is a fixed-window per-client limiter backed by Redis, for
// deployments running several service instances behind one balancer. It
// fails open: when Redis is unreachable the request is admitted and the
// in-process ceilings still apply.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int
	prefix string
	logger *zap.Logger
}

// RedisConfig configures a RedisLimiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Window and Limit define the fixed window: at most Limit requests per
	// client per Window.
	Window time.Duration
	Limit  int
	// KeyPrefix namespaces the limiter keys. Defaults to "admission".
	KeyPrefix string
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(cfg RedisConfig, logger *zap.Logger) (*RedisLimiter, error) {
	if cfg.Window <= 0 || cfg.Limit <= 0 {
		return nil, fmt.Errorf("redis limiter requires positive window and limit, got %v/%d",
			cfg.Window, cfg.Limit)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "admission"
	}

	return &RedisLimiter{
		client: client,
		window: cfg.Window,
		limit:  cfg.Limit,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_limiter")),
	}, nil
}

// Allow increments the client's counter for the current window and admits
// the request while the counter stays within the limit.
func (rl *RedisLimiter) Allow(ctx context.Context, clientID string) bool {
	key := rl.key(clientID)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("redis limiter unavailable, admitting request",
			zap.String("client_id", clientID), zap.Error(err))
		return true
	}
	return incr.Val() <= int64(rl.limit)
}

func (rl *RedisLimiter) key(clientID string) string {
	window := time.Now().UnixNano() / int64(rl.window)
	return fmt.Sprintf("%s:%s:%d", rl.prefix, clientID, window)
}

// Close releases the Redis connection.
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
