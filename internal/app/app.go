package app

import (
	"go.uber.org/fx"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain"
	"github.com/yourusername/telegram-feed-router/router-service/internal/infrastructure/database"
	"github.com/yourusername/telegram-feed-router/router-service/internal/infrastructure/kafka"
	"github.com/yourusername/telegram-feed-router/router-service/internal/infrastructure/logger"
	"github.com/yourusername/telegram-feed-router/router-service/internal/infrastructure/redis"
)

// CreateApp creates the fx application with all dependencies
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),
		fx.Provide(logger.NewLogger),
		fx.Provide(database.NewPostgresDB),
		fx.Provide(redis.NewRedisClient),
		kafka.Module,
		domain.Module,
	)
}
