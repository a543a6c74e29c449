package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
	"github.com/yourusername/telegram-feed-router/router-service/pkg/mapfn"
)

// Engine is the config sync loop: it keeps live routing state eventually
// consistent with stored configuration. Each tick diffs a per-owner
// fingerprint of (active feeds, tier, expiry) against the cached one and
// re-registers owners whose fingerprint changed. A failing tick backs off and
// the loop continues; it never terminates the process.
type Engine struct {
	feeds     deps.FeedStore
	subs      deps.SubscriptionClient
	registrar *Registrar
	cfg       *config.EngineConfig
	logger    zerolog.Logger

	// fingerprints is touched only from the run goroutine
	fingerprints map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates the feed routing engine
func NewEngine(
	feeds deps.FeedStore,
	subs deps.SubscriptionClient,
	registrar *Registrar,
	cfg *config.EngineConfig,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		feeds:        feeds,
		subs:         subs,
		registrar:    registrar,
		cfg:          cfg,
		logger:       logger,
		fingerprints: make(map[string]string),
	}
}

// Start launches the sync loop
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(ctx)
	e.logger.Info().
		Dur("sync_interval", e.cfg.SyncInterval).
		Msg("Feed routing engine started")
}

// Stop cancels the loop, waits for it to drain and tears down every owner
// registration, cancelling outstanding album timers.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.registrar.Shutdown()
	e.logger.Info().Msg("Feed routing engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	for {
		if err := e.syncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error().Err(err).Msg("Config sync tick failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.ErrorBackoff):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.SyncInterval):
		}
	}
}

// syncOnce performs one reconciliation pass over all owners
func (e *Engine) syncOnce(ctx context.Context) error {
	activeFeeds, err := e.feeds.ListActiveFeeds(ctx)
	if err != nil {
		return err
	}

	byOwner := mapfn.GroupBy(activeFeeds, func(f entities.Feed) string { return f.OwnerID })

	for ownerID, ownerFeeds := range byOwner {
		status, err := e.subs.GetStatus(ctx, ownerID)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("owner_id", ownerID).
				Msg("Subscription status unavailable, skipping owner this round")
			continue
		}

		fingerprint := Fingerprint(ownerFeeds, status)
		if e.fingerprints[ownerID] == fingerprint {
			continue
		}

		e.logger.Info().
			Str("owner_id", ownerID).
			Int("feed_count", len(ownerFeeds)).
			Msg("Config changed, refreshing registration")

		if err := e.registrar.Register(ctx, ownerID, ownerFeeds, status); err != nil {
			// The fingerprint stays uncached either way, so the owner is
			// naturally retried on the next tick.
			if errors.Is(err, domainerrors.ErrNotAuthenticated) {
				e.logger.Warn().
					Str("owner_id", ownerID).
					Msg("Owner not authenticated, skipping")
				continue
			}
			e.logger.Error().Err(err).
				Str("owner_id", ownerID).
				Msg("Registration failed this round")
			continue
		}

		e.fingerprints[ownerID] = fingerprint
	}

	// Owners whose last active feed vanished keep no subscription behind.
	for ownerID := range e.fingerprints {
		if _, stillActive := byOwner[ownerID]; !stillActive {
			e.registrar.Deregister(ownerID)
			delete(e.fingerprints, ownerID)
		}
	}

	return nil
}
