package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
)

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new stored-session repository
func NewSessionRepository(db *gorm.DB) deps.CredentialStore {
	return &sessionRepository{
		db: db,
	}
}

// GetSessionBlob returns the owner's session blob. A missing row is not an
// error: it simply means the owner never authenticated.
func (r *sessionRepository) GetSessionBlob(ctx context.Context, ownerID string) ([]byte, error) {
	var session entities.StoredSession
	result := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		First(&session)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domainerrors.ErrDatabaseOperation
	}

	return session.SessionBlob, nil
}
