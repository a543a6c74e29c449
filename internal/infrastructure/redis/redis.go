package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/telegram-feed-router/router-service/config"
)

// NewRedisClient creates a redis client for the rate-limit counter store.
// The connection is lazy; the limiter fails open while redis is unreachable.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return redis.NewClient(opts), nil
}
