package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/client"
	"sentinel/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitCache holds the fixed-window counters. Each counter is one Redis
// key with a TTL equal to its action's window; expiry is the window reset.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// Increment bumps a counter and (re)sets its window in one transaction.
func (c *RateLimitCache) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, rateLimitPrefix+key, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count, nil
}

// Count returns the current window's count; a missing counter is zero.
func (c *RateLimitCache) Count(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	val, found, err := c.client.Get(ctx, rateLimitPrefix+key)
	if err != nil {
		return 0, fmt.Errorf("failed to get rate limit counter: %w", err)
	}
	if !found {
		return 0, nil
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		util.Error("Invalid counter format",
			zap.String("key", key),
			zap.String("value", val),
			zap.Error(err))
		return 0, fmt.Errorf("invalid counter format: %w", err)
	}

	return count, nil
}

// Reset clears a counter before its window elapses. Used by operators, not
// by the request path.
func (c *RateLimitCache) Reset(ctx context.Context, key string) error {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.Del(ctx, rateLimitPrefix+key); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}

	util.Debug("Rate limit counter reset", zap.String("key", key))
	return nil
}

// WindowRemaining reports how long until a counter expires.
func (c *RateLimitCache) WindowRemaining(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := c.client.WithContext(ctx, 5*time.Second)
	defer cancel()

	return c.client.TTL(ctx, rateLimitPrefix+key)
}
