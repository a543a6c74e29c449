package routing

import (
	"context"

	"go.uber.org/fx"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/repository/http_clients/gateway"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/repository/http_clients/subscription"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/repository/postgres"
	redisrepo "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/repository/redis"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/usecase/engine"
)

// Module provides routing domain dependencies
var Module = fx.Module(
	"routing",
	fx.Provide(
		postgres.NewFeedRepository,
		postgres.NewSessionRepository,
		redisrepo.NewCounter,
		subscription.NewClient,
		gateway.NewProvider,
		engine.NewLimiter,
		engine.NewDispatcher,
		engine.NewRegistrar,
		engine.NewEngine,
	),
	fx.Invoke(registerEngineLifecycle),
)

func registerEngineLifecycle(lc fx.Lifecycle, e *engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			e.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			e.Stop()
			return nil
		},
	})
}
