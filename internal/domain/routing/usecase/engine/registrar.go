package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
)

// RoutingState is the live routing material for one owner: the immutable
// routing index, the pending-album buffers and the connection they ride on.
// A registration builds a fresh state and swaps it in whole; the dispatch
// path never sees a half-updated index.
type RoutingState struct {
	OwnerID string
	Index   RoutingIndex
	Status  entities.SubscriptionStatus
	Albums  *Aggregator
	Conn    deps.Connection
}

// Registrar keeps exactly one live message subscription per registered owner
// and owns the dispatch pipeline that subscription feeds into.
type Registrar struct {
	connections deps.ConnectionProvider
	credentials deps.CredentialStore
	dispatcher  *Dispatcher
	limiter     *Limiter
	cfg         *config.EngineConfig
	logger      zerolog.Logger

	mu     sync.Mutex
	states map[string]*RoutingState
}

// NewRegistrar creates a new connection registrar
func NewRegistrar(
	connections deps.ConnectionProvider,
	credentials deps.CredentialStore,
	dispatcher *Dispatcher,
	limiter *Limiter,
	cfg *config.EngineConfig,
	logger zerolog.Logger,
) *Registrar {
	return &Registrar{
		connections: connections,
		credentials: credentials,
		dispatcher:  dispatcher,
		limiter:     limiter,
		cfg:         cfg,
		logger:      logger,
		states:      make(map[string]*RoutingState),
	}
}

// Register ensures the owner's connection carries a subscription matching the
// given feed set and subscription status. Previous callbacks are removed and
// pending albums abandoned before the new index goes live. A missing or
// unusable session returns ErrNotAuthenticated so the sync loop retries the
// owner on a later tick instead of caching the fingerprint.
func (r *Registrar) Register(ctx context.Context, ownerID string, feeds []entities.Feed, status entities.SubscriptionStatus) error {
	blob, err := r.credentials.GetSessionBlob(ctx, ownerID)
	if err != nil {
		return err
	}
	if blob == nil {
		// A vanished blob means the owner logged out; any live
		// registration must not keep forwarding on the dead credential.
		r.Deregister(ownerID)
		return domainerrors.ErrNotAuthenticated
	}

	conn, err := r.connections.GetConnection(ctx, ownerID, blob)
	if err != nil {
		if errors.Is(err, domainerrors.ErrSessionRevoked) {
			r.Deregister(ownerID)
		}
		return err
	}

	authenticated, err := conn.IsAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !authenticated {
		r.Deregister(ownerID)
		return domainerrors.ErrNotAuthenticated
	}

	// Tear down the previous registration first so no event is ever
	// evaluated against a mixed old/new index. The superseded state may
	// ride a different connection object, so both get unsubscribed.
	conn.UnsubscribeAll()
	r.dropState(ownerID)

	effective := r.effectiveFeeds(ownerID, feeds, status)
	if len(effective) == 0 {
		r.logger.Info().
			Str("owner_id", ownerID).
			Msg("No routable feeds, registration skipped")
		return nil
	}

	state := &RoutingState{
		OwnerID: ownerID,
		Index:   BuildIndex(effective),
		Status:  status,
		Conn:    conn,
	}
	state.Albums = NewAggregator(r.cfg.AlbumDebounce, func(sourceID int64, sourcePeer entities.Peer, messageIDs []int64, albumFeeds []entities.Feed) {
		r.flushAlbum(state, sourceID, sourcePeer, messageIDs, albumFeeds)
	}, r.logger.With().Str("owner_id", ownerID).Logger())

	if err := conn.Subscribe(func(msgCtx context.Context, msg *entities.Message) {
		r.handleMessage(msgCtx, state, msg)
	}); err != nil {
		if errors.Is(err, domainerrors.ErrSessionRevoked) {
			r.Deregister(ownerID)
		}
		return err
	}

	r.mu.Lock()
	r.states[ownerID] = state
	r.mu.Unlock()

	r.logger.Info().
		Str("owner_id", ownerID).
		Int("feed_count", len(effective)).
		Int("source_count", len(state.Index)).
		Msg("Owner registered")

	return nil
}

// Deregister removes the owner's subscription and abandons any pending albums
func (r *Registrar) Deregister(ownerID string) {
	if r.dropState(ownerID) {
		r.logger.Info().
			Str("owner_id", ownerID).
			Msg("Owner deregistered")
	}
}

// Shutdown deregisters every owner
func (r *Registrar) Shutdown() {
	r.mu.Lock()
	owners := make([]string, 0, len(r.states))
	for ownerID := range r.states {
		owners = append(owners, ownerID)
	}
	r.mu.Unlock()

	for _, ownerID := range owners {
		r.Deregister(ownerID)
	}
}

// State returns the owner's live routing state, or nil
func (r *Registrar) State(ownerID string) *RoutingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[ownerID]
}

// dropState removes the owner's routing state and tears down the
// subscription and pending albums that ride on it. The state's own
// connection is unsubscribed here; it is not necessarily the object the
// caller holds. Reports whether a state existed.
func (r *Registrar) dropState(ownerID string) bool {
	r.mu.Lock()
	state, ok := r.states[ownerID]
	delete(r.states, ownerID)
	r.mu.Unlock()

	if !ok {
		return false
	}

	state.Conn.UnsubscribeAll()
	state.Albums.Abandon()
	return true
}

// effectiveFeeds applies the trial-expiry restriction: an expired owner keeps
// at most one feed, and only one carrying no filters at all.
func (r *Registrar) effectiveFeeds(ownerID string, feeds []entities.Feed, status entities.SubscriptionStatus) []entities.Feed {
	if !status.IsExpired {
		return feeds
	}

	for _, feed := range feeds {
		if !feed.HasAnyFilters() {
			r.logger.Info().
				Str("owner_id", ownerID).
				Str("feed_id", feed.ID).
				Msg("Subscription expired, restricting to single unfiltered feed")
			return []entities.Feed{feed}
		}
	}

	r.logger.Info().
		Str("owner_id", ownerID).
		Msg("Subscription expired and no unfiltered feed available")
	return nil
}

// handleMessage is the dispatch pipeline for one live event. Grouped messages
// ride the album aggregator; singles go straight to the dispatcher.
func (r *Registrar) handleMessage(ctx context.Context, state *RoutingState, msg *entities.Message) {
	if len(state.Index[msg.SourceChannelID]) == 0 {
		r.logger.Debug().
			Str("owner_id", state.OwnerID).
			Int64("source_id", msg.SourceChannelID).
			Msg("No feeds registered for source")
		return
	}

	if msg.GroupedID != 0 {
		// Later members of an open group share the first message's
		// eligibility and only join the id set.
		if state.Albums.Extend(msg.SourceChannelID, msg.GroupedID, msg.ID) {
			return
		}
	}

	eligible := r.eligibleFeeds(ctx, state, msg)

	if msg.GroupedID != 0 {
		// The album opens even with no eligible feeds: the first message
		// decides for the whole group, so later members must coalesce into
		// the buffer instead of being re-evaluated. An empty flush is a
		// no-op.
		state.Albums.Open(msg.SourceChannelID, msg.GroupedID, msg, eligible)
		return
	}

	if len(eligible) == 0 {
		return
	}

	for _, feed := range eligible {
		r.dispatcher.Deliver(
			ctx,
			state.Conn,
			state.OwnerID,
			msg.SourceChannelID,
			feed.DestinationChannelID,
			[]int64{msg.ID},
			r.forwardDelay(feed),
			msg.Peer,
			[]entities.Feed{feed},
		)
	}
}

// eligibleFeeds evaluates filter policy, tier gating and rate limits for one
// message. Filters are honored only on advanced tiers; on lower tiers a feed
// or source carrying a filter is skipped at dispatch time, so unfiltered
// sources on the same index keep routing.
func (r *Registrar) eligibleFeeds(ctx context.Context, state *RoutingState, msg *entities.Message) []entities.Feed {
	allowFilters := state.Status.Tier.AllowsFilters()

	var eligible []entities.Feed
	for _, feed := range state.Index[msg.SourceChannelID] {
		sourcePolicy := feed.SourceFilter(msg.SourceChannelID)

		if !allowFilters {
			if feed.Filters != nil || sourcePolicy != nil {
				r.logger.Debug().
					Str("owner_id", state.OwnerID).
					Str("feed_id", feed.ID).
					Str("tier", string(state.Status.Tier)).
					Msg("Filters not available on tier, skipping filtered route")
				continue
			}
			eligible = append(eligible, feed)
			continue
		}

		if sourcePolicy != nil {
			if !Passes(msg, sourcePolicy) {
				r.logger.Debug().
					Str("feed_id", feed.ID).
					Int64("source_id", msg.SourceChannelID).
					Msg("Message rejected by source filter")
				continue
			}
			if !r.limiter.Allow(ctx, state.OwnerID, sourceLimitKey(msg.SourceChannelID), sourcePolicy.MaxMessagesPerHour, sourcePolicy.MaxMessagesPerDay) {
				continue
			}
		}

		if feed.Filters != nil {
			if !Passes(msg, feed.Filters) {
				r.logger.Debug().
					Str("feed_id", feed.ID).
					Msg("Message rejected by feed filter")
				continue
			}
			if !r.limiter.Allow(ctx, state.OwnerID, feedLimitKey(feed.ID), feed.Filters.MaxMessagesPerHour, feed.Filters.MaxMessagesPerDay) {
				continue
			}
		}

		eligible = append(eligible, feed)
	}

	return eligible
}

// flushAlbum fans a completed album out once per destination channel; every
// feed sharing a destination rides the same batch.
func (r *Registrar) flushAlbum(state *RoutingState, sourceID int64, sourcePeer entities.Peer, messageIDs []int64, feeds []entities.Feed) {
	byDestination := make(map[int64][]entities.Feed)
	for _, feed := range feeds {
		byDestination[feed.DestinationChannelID] = append(byDestination[feed.DestinationChannelID], feed)
	}

	// The debounce timer fires outside any event context.
	ctx := context.Background()

	for destinationID, destinationFeeds := range byDestination {
		r.dispatcher.Deliver(
			ctx,
			state.Conn,
			state.OwnerID,
			sourceID,
			destinationID,
			messageIDs,
			r.albumDelay(destinationFeeds),
			sourcePeer,
			destinationFeeds,
		)
	}
}

// forwardDelay returns the scheduling delay for one feed
func (r *Registrar) forwardDelay(feed entities.Feed) time.Duration {
	if feed.DelayEnabled {
		return r.cfg.ForwardDelay
	}
	return 0
}

// albumDelay applies the forward delay when any feed on the destination asks
// for it; the batch is one transport call and cannot split per feed.
func (r *Registrar) albumDelay(feeds []entities.Feed) time.Duration {
	for _, feed := range feeds {
		if feed.DelayEnabled {
			return r.cfg.ForwardDelay
		}
	}
	return 0
}
