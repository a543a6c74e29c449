package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
)

// Limiter decides admission for a (userID, key) pair against optional hourly
// and daily caps, backed by the shared counter service.
type Limiter struct {
	counter deps.RateLimitCounter
	logger  zerolog.Logger
}

// NewLimiter creates a new rate limiter
func NewLimiter(counter deps.RateLimitCounter, logger zerolog.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		logger:  logger,
	}
}

// Allow reports whether one more message is admitted under the given caps.
// With no caps set it returns true without touching any counter, so unused
// keys never consume storage. Every touched bucket is incremented before the
// caps are compared: a rejected message still counts toward its window.
func (l *Limiter) Allow(ctx context.Context, userID, key string, maxHourly, maxDaily *int) bool {
	if maxHourly == nil && maxDaily == nil {
		return true
	}

	var hourly, daily int64 = -1, -1

	if maxHourly != nil {
		count, err := l.counter.Increment(ctx, userID, key, entities.WindowHour)
		if err != nil {
			l.logger.Warn().Err(err).
				Str("user_id", userID).
				Str("key", key).
				Msg("Hourly counter unavailable, admitting message")
		} else {
			hourly = count
		}
	}

	if maxDaily != nil {
		count, err := l.counter.Increment(ctx, userID, key, entities.WindowDay)
		if err != nil {
			l.logger.Warn().Err(err).
				Str("user_id", userID).
				Str("key", key).
				Msg("Daily counter unavailable, admitting message")
		} else {
			daily = count
		}
	}

	if maxHourly != nil && hourly > int64(*maxHourly) {
		l.logger.Debug().
			Str("user_id", userID).
			Str("key", key).
			Int64("count", hourly).
			Int("max", *maxHourly).
			Msg("Hourly rate limit exceeded")
		return false
	}

	if maxDaily != nil && daily > int64(*maxDaily) {
		l.logger.Debug().
			Str("user_id", userID).
			Str("key", key).
			Int64("count", daily).
			Int("max", *maxDaily).
			Msg("Daily rate limit exceeded")
		return false
	}

	return true
}

// sourceLimitKey scopes a counter to one source channel across a feed set
func sourceLimitKey(sourceID int64) string {
	return fmt.Sprintf("source_%d", sourceID)
}

// feedLimitKey scopes a counter to one feed's feed-wide policy
func feedLimitKey(feedID string) string {
	return fmt.Sprintf("feed_%s", feedID)
}
