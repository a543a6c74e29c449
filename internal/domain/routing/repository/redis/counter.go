package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
)

type counter struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewCounter creates a redis-backed rate-limit counter
func NewCounter(client *redis.Client, logger zerolog.Logger) deps.RateLimitCounter {
	return &counter{
		client: client,
		logger: logger,
	}
}

// Increment bumps the bucket for the current window and returns the
// post-increment count. Buckets carry a TTL of twice their window length, so
// stale counters age out without an explicit sweep.
func (c *counter) Increment(ctx context.Context, userID, key string, window entities.Window) (int64, error) {
	span := window.Seconds()
	bucket := time.Now().Unix() / span
	redisKey := fmt.Sprintf("rate:%s:%s:%s:%d", userID, key, window, bucket)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, time.Duration(2*span)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	return incr.Val(), nil
}
