package main

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/app"
)

func main() {
	fx.New(
		app.CreateApp(),
		fx.Invoke(run),
	).Run()
}

func run(
	lc fx.Lifecycle,
	cfg *config.Config,
	db *gorm.DB,
	logger zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info().
				Str("service", cfg.Service.Name).
				Dur("sync_interval", cfg.Engine.SyncInterval).
				Msg("Starting router service")

			logger.Info().Msg("Database connected successfully")
			logger.Info().Msg("Router service initialized successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Shutting down router service...")

			sqlDB, _ := db.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}

			logger.Info().Msg("Router service stopped")
			return nil
		},
	})
}
