package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultStatusCacheTTL = 30 * time.Second

// StatusCacheConfig configures the Redis-backed status cache.
type StatusCacheConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
	Logger   *slog.Logger
}

// StatusCache wraps a Gateway and serves repeated status lookups for the same
// order from Redis for a short window. Status polling from checkout pages is
// bursty; the cache keeps that burst off the provider. Create calls pass
// through untouched.
type StatusCache struct {
	next   Gateway
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatusCache connects to Redis and returns the caching wrapper.
func NewStatusCache(next Gateway, cfg StatusCacheConfig) (*StatusCache, error) {
	if next == nil {
		return nil, fmt.Errorf("wrapped gateway required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultStatusCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &StatusCache{next: next, client: client, ttl: ttl, logger: logger}, nil
}

func (c *StatusCache) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (CreateTransactionResponse, error) {
	return c.next.CreateTransaction(ctx, req)
}

func (c *StatusCache) TransactionStatus(ctx context.Context, orderID string) (StatusResponse, error) {
	key := statusCacheKey(orderID)
	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var resp StatusResponse
		if decodeErr := json.Unmarshal(cached, &resp); decodeErr == nil {
			return resp, nil
		}
		// A malformed cache entry falls through to the provider.
		c.logger.Warn("discarding malformed status cache entry", "order_id", orderID)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("status cache read failed", "order_id", orderID, "error", err)
	}

	resp, err := c.next.TransactionStatus(ctx, orderID)
	if err != nil {
		return StatusResponse{}, err
	}
	// Terminal states never change; cache them longer.
	ttl := c.ttl
	if resp.Completed() || resp.Failed() {
		ttl = 10 * c.ttl
	}
	if payload, encodeErr := json.Marshal(resp); encodeErr == nil {
		if setErr := c.client.Set(ctx, key, payload, ttl).Err(); setErr != nil {
			c.logger.Warn("status cache write failed", "order_id", orderID, "error", setErr)
		}
	}
	return resp, nil
}

// Close releases the Redis connection.
func (c *StatusCache) Close() error {
	return c.client.Close()
}

func statusCacheKey(orderID string) string {
	return "assetmarket:payment:status:" + orderID
}

var _ Gateway = (*StatusCache)(nil)
