package domain

import (
	"go.uber.org/fx"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing"
)

// Module aggregates all domain modules
var Module = fx.Module(
	"domain",
	routing.Module,
)
