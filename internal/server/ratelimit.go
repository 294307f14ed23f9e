package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type RateLimitConfig struct {
	GlobalRPS      float64
	GlobalBurst    int
	CheckoutLimit  int
	CheckoutWindow time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisTimeout   time.Duration
}

// rateLimiter combines a global token bucket with a per-client limit on
// checkout attempts. The per-client counters live in redis when an address is
// configured so multiple instances share one budget.
type rateLimiter struct {
	global          *tokenBucket
	checkoutLimit   int
	checkoutWindow  time.Duration
	checkoutMu      sync.Mutex
	checkoutBuckets map[string]*ipLimiter
	store           tokenStore
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		checkoutLimit:   cfg.CheckoutLimit,
		checkoutWindow:  cfg.CheckoutWindow,
		checkoutBuckets: make(map[string]*ipLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.checkoutLimit <= 0 {
		rl.checkoutLimit = 0
	}
	if rl.checkoutWindow <= 0 {
		rl.checkoutWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.checkoutLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) AllowCheckout(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.checkoutLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		allowed, retryAfter, err := r.store.Allow(ctx, fmt.Sprintf("assetmarket:checkout:%s", key), r.checkoutLimit, r.checkoutWindow)
		return allowed, retryAfter, err
	}
	if key == "" {
		key = "unknown"
	}
	r.checkoutMu.Lock()
	bucket, exists := r.checkoutBuckets[key]
	if !exists {
		rate := float64(r.checkoutLimit) / r.checkoutWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.checkoutWindow.Seconds()
		}
		bucket = &ipLimiter{bucket: newTokenBucket(rate, r.checkoutLimit)}
		r.checkoutBuckets[key] = bucket
	}
	bucket.lastSeen = time.Now()
	r.cleanupLocked()
	r.checkoutMu.Unlock()

	if bucket.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.checkoutBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.checkoutWindow)
	for key, bucket := range r.checkoutBuckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(r.checkoutBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
