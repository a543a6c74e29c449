package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/dto"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
)

type feedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *gorm.DB) deps.FeedStore {
	return &feedRepository{
		db: db,
	}
}

// ListActiveFeeds retrieves every active feed across all owners
func (r *feedRepository) ListActiveFeeds(ctx context.Context) ([]entities.Feed, error) {
	var feeds []entities.Feed
	result := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("owner_id, id").
		Find(&feeds)

	if result.Error != nil {
		return nil, domainerrors.ErrDatabaseOperation
	}

	return feeds, nil
}

// UpdateFeed applies a partial update to one feed
func (r *feedRepository) UpdateFeed(ctx context.Context, ownerID, feedID string, update dto.FeedUpdate) (*entities.Feed, error) {
	if update.IsZero() {
		return r.getFeed(ctx, ownerID, feedID)
	}

	updates := make(map[string]interface{})
	if update.Active != nil {
		updates["active"] = *update.Active
	}
	if update.Error != nil {
		updates["error"] = *update.Error
	}
	if update.ClearError {
		updates["error"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&entities.Feed{}).
		Where("id = ? AND owner_id = ?", feedID, ownerID).
		Updates(updates)

	if result.Error != nil {
		return nil, domainerrors.ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return nil, domainerrors.ErrFeedNotFound
	}

	return r.getFeed(ctx, ownerID, feedID)
}

// DisableFeeds deactivates the given feeds and records an error code, in one batch
func (r *feedRepository) DisableFeeds(ctx context.Context, feedIDs []string, errorCode string) error {
	if len(feedIDs) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&entities.Feed{}).
		Where("id IN ?", feedIDs).
		Updates(map[string]interface{}{
			"active": false,
			"error":  errorCode,
		})

	if result.Error != nil {
		return domainerrors.ErrDatabaseOperation
	}

	return nil
}

func (r *feedRepository) getFeed(ctx context.Context, ownerID, feedID string) (*entities.Feed, error) {
	var feed entities.Feed
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", feedID, ownerID).
		First(&feed)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrFeedNotFound
		}
		return nil, domainerrors.ErrDatabaseOperation
	}

	return &feed, nil
}
