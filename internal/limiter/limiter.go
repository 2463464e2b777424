// Package limiter provides per-client rate limiters used by the admission
// controller. This package is internal and should not be imported by
// external projects.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter decides whether a client may submit another request right
// now. Implementations must be safe for concurrent use.
type ClientLimiter interface {
	Allow(ctx context.Context, clientID string) bool
}

// Unlimited permits everything. Used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) bool { return true }

// visitor tracks one client's token bucket and its last activity for
// idle eviction.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucket is an in-memory per-client token bucket limiter. Buckets
// for idle clients are evicted so the map stays bounded.
type TokenBucket struct {
	rps     float64
	burst   int
	maxIdle time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	lastScan time.Time
}

// NewTokenBucket creates a limiter allowing rps requests per second with
// the given burst per client.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		rps:      rps,
		burst:    burst,
		maxIdle:  3 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

// Allow consumes one token from the client's bucket.
func (tb *TokenBucket) Allow(_ context.Context, clientID string) bool {
	now := time.Now()

	tb.mu.Lock()
	defer tb.mu.Unlock()

	v, ok := tb.visitors[clientID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(tb.rps), tb.burst)}
		tb.visitors[clientID] = v
	}
	v.lastSeen = now

	if now.Sub(tb.lastScan) > tb.maxIdle {
		tb.evictIdleLocked(now)
		tb.lastScan = now
	}

	return v.limiter.Allow()
}

func (tb *TokenBucket) evictIdleLocked(now time.Time) {
	for id, v := range tb.visitors {
		if now.Sub(v.lastSeen) > tb.maxIdle {
			delete(tb.visitors, id)
		}
	}
}
