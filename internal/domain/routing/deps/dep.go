package deps

import (
	"context"
	"time"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/dto"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
)

// FeedStore defines the interface for feed configuration access.
// The engine reads snapshots and writes back only activation state and
// error codes; feed CRUD belongs to the configuration API.
type FeedStore interface {
	// ListActiveFeeds retrieves every active feed across all owners
	ListActiveFeeds(ctx context.Context) ([]entities.Feed, error)

	// UpdateFeed applies a partial update to one feed
	UpdateFeed(ctx context.Context, ownerID, feedID string, update dto.FeedUpdate) (*entities.Feed, error)

	// DisableFeeds deactivates the given feeds and records an error code, in one batch
	DisableFeeds(ctx context.Context, feedIDs []string, errorCode string) error
}

// SubscriptionClient defines the interface for the subscription service
type SubscriptionClient interface {
	// GetStatus retrieves the owner's current subscription status
	GetStatus(ctx context.Context, ownerID string) (entities.SubscriptionStatus, error)
}

// CredentialStore defines the interface for stored chat-platform sessions
type CredentialStore interface {
	// GetSessionBlob returns the owner's session blob, or nil when absent
	GetSessionBlob(ctx context.Context, ownerID string) ([]byte, error)
}

// RateLimitCounter defines the interface for the shared counter service
type RateLimitCounter interface {
	// Increment atomically bumps the (userID, key) counter for the current
	// window bucket and returns the post-increment count. Buckets expire on
	// their own; callers never sweep them.
	Increment(ctx context.Context, userID, key string, window entities.Window) (int64, error)
}

// MessageHandler consumes one live message event
type MessageHandler func(ctx context.Context, msg *entities.Message)

// Connection is one owner's live link to the chat platform
type Connection interface {
	// IsAuthenticated reports whether the session behind the connection is usable
	IsAuthenticated(ctx context.Context) (bool, error)

	// Subscribe installs the single message callback for this connection
	Subscribe(handler MessageHandler) error

	// UnsubscribeAll removes every installed callback; clearing zero handlers is not an error
	UnsubscribeAll()

	// ResolveDestination looks up a cached identity handle for a peer id
	ResolveDestination(ctx context.Context, peerID int64) (*entities.Peer, error)

	// ResolveChannel resolves a peer id explicitly as a channel reference
	ResolveChannel(ctx context.Context, channelID int64) (*entities.Peer, error)

	// RefreshDialogs refreshes the connection's known-peer list
	RefreshDialogs(ctx context.Context) error

	// Forward forwards messages from one peer to another, optionally scheduled
	// at an absolute time instead of delivered immediately
	Forward(ctx context.Context, to, from entities.Peer, messageIDs []int64, scheduleAt *time.Time) error
}

// ConnectionProvider establishes or reuses per-owner connections
type ConnectionProvider interface {
	GetConnection(ctx context.Context, ownerID string, sessionBlob []byte) (Connection, error)
}

// EventProducer defines the interface for publishing feed status events
type EventProducer interface {
	// SendFeedsDisabled announces that feeds were deactivated after a permanent delivery failure
	SendFeedsDisabled(ctx context.Context, ownerID string, feedIDs []string, errorCode string) error

	// Close closes the producer
	Close() error
}
