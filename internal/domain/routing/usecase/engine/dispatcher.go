package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/dto"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
	"github.com/yourusername/telegram-feed-router/router-service/pkg/errors"
	"github.com/yourusername/telegram-feed-router/router-service/pkg/mapfn"
)

// channelMarkOffset is the numeric prefix the platform applies to
// channel-shaped peer ids.
const channelMarkOffset = int64(-1000000000000)

// Dispatcher performs forwards and interprets their outcomes. Permanent
// destination failures deactivate the affected feeds; transient ones are
// logged and implicitly retried by the next matching event. Deliver never
// raises out of its entry point.
type Dispatcher struct {
	feeds  deps.FeedStore
	events deps.EventProducer
	logger zerolog.Logger
}

// NewDispatcher creates a new delivery dispatcher
func NewDispatcher(feeds deps.FeedStore, events deps.EventProducer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		feeds:  feeds,
		events: events,
		logger: logger,
	}
}

// Deliver forwards messageIDs from sourceID to destinationID on behalf of the
// given feeds. A positive delay schedules the forward at an absolute UTC time
// on the transport instead of sleeping locally.
func (d *Dispatcher) Deliver(
	ctx context.Context,
	conn deps.Connection,
	ownerID string,
	sourceID, destinationID int64,
	messageIDs []int64,
	delay time.Duration,
	sourcePeer entities.Peer,
	feeds []entities.Feed,
) {
	dest, err := d.resolveDestination(ctx, conn, destinationID)
	if err != nil {
		d.handleFailure(ctx, ownerID, destinationID, feeds, err)
		return
	}

	var scheduleAt *time.Time
	if delay > 0 {
		at := time.Now().UTC().Add(delay)
		scheduleAt = &at
	}

	if err := conn.Forward(ctx, *dest, sourcePeer, messageIDs, scheduleAt); err != nil {
		d.handleFailure(ctx, ownerID, destinationID, feeds, err)
		return
	}

	d.logger.Info().
		Str("owner_id", ownerID).
		Int64("source_id", sourceID).
		Int64("destination_id", destinationID).
		Int("message_count", len(messageIDs)).
		Bool("scheduled", scheduleAt != nil).
		Msg("Messages forwarded")

	d.clearFeedErrors(ctx, feeds)
}

// resolveDestination turns a raw destination id into an identity handle.
// Attempts are bounded: cached lookup, one dialog refresh plus retry, then an
// explicit channel reference for channel-shaped ids.
func (d *Dispatcher) resolveDestination(ctx context.Context, conn deps.Connection, destinationID int64) (*entities.Peer, error) {
	peer, err := conn.ResolveDestination(ctx, destinationID)
	if err == nil {
		return peer, nil
	}
	if errors.IsUnavailableError(err) {
		return nil, err
	}

	if refreshErr := conn.RefreshDialogs(ctx); refreshErr != nil {
		d.logger.Debug().Err(refreshErr).
			Int64("destination_id", destinationID).
			Msg("Dialog refresh failed during destination resolution")
	}

	peer, err = conn.ResolveDestination(ctx, destinationID)
	if err == nil {
		return peer, nil
	}

	if isChannelShaped(destinationID) {
		peer, chErr := conn.ResolveChannel(ctx, destinationID)
		if chErr == nil {
			return peer, nil
		}
		err = chErr
	}

	if errors.IsUnavailableError(err) {
		return nil, err
	}
	return nil, domainerrors.ErrPeerNotFound
}

// handleFailure classifies a delivery error. Structural failures mark every
// affected feed with ERR_DESTINATION_DELETED and deactivate it in one batch;
// anything else is logged and left to the next event.
func (d *Dispatcher) handleFailure(ctx context.Context, ownerID string, destinationID int64, feeds []entities.Feed, err error) {
	feedIDs := mapfn.ConvertSlice(feeds, func(f entities.Feed) string { return f.ID })

	if !errors.IsPermanent(err) {
		d.logger.Warn().Err(err).
			Str("owner_id", ownerID).
			Int64("destination_id", destinationID).
			Strs("feed_ids", feedIDs).
			Msg("Transient delivery failure, will retry on next event")
		return
	}

	d.logger.Error().Err(err).
		Str("owner_id", ownerID).
		Int64("destination_id", destinationID).
		Strs("feed_ids", feedIDs).
		Msg("Destination gone, disabling feeds")

	if storeErr := d.feeds.DisableFeeds(ctx, feedIDs, domainerrors.CodeDestinationDeleted); storeErr != nil {
		d.logger.Error().Err(storeErr).
			Strs("feed_ids", feedIDs).
			Msg("Failed to disable feeds after permanent delivery failure")
		return
	}

	if d.events != nil {
		if evErr := d.events.SendFeedsDisabled(ctx, ownerID, feedIDs, domainerrors.CodeDestinationDeleted); evErr != nil {
			d.logger.Warn().Err(evErr).
				Strs("feed_ids", feedIDs).
				Msg("Failed to publish feeds disabled event")
		}
	}
}

// clearFeedErrors wipes a previously recorded error from feeds that just
// delivered successfully.
func (d *Dispatcher) clearFeedErrors(ctx context.Context, feeds []entities.Feed) {
	marked := mapfn.FilterSlice(feeds, func(f entities.Feed) bool { return f.Error != nil })
	for _, feed := range marked {
		if _, err := d.feeds.UpdateFeed(ctx, feed.OwnerID, feed.ID, dto.FeedUpdate{ClearError: true}); err != nil {
			d.logger.Warn().Err(err).
				Str("feed_id", feed.ID).
				Msg("Failed to clear feed error after successful delivery")
		}
	}
}

// isChannelShaped reports whether the id carries the platform's channel mark
func isChannelShaped(id int64) bool {
	return id < channelMarkOffset
}
