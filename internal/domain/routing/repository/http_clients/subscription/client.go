package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	pkgerrors "github.com/yourusername/telegram-feed-router/router-service/pkg/errors"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type statusResponse struct {
	Tier       string `json:"tier"`
	IsExpired  bool   `json:"is_expired"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

// NewClient creates a subscription service client
func NewClient(cfg *config.SubscriptionServiceConfig, logger zerolog.Logger) deps.SubscriptionClient {
	client := &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}

	logger.Info().
		Str("base_url", cfg.URL).
		Msg("Subscription client initialized")

	return client
}

// GetStatus retrieves the owner's subscription status. An owner unknown to
// the subscription service is a free-tier user, not an error.
func (c *Client) GetStatus(ctx context.Context, ownerID string) (entities.SubscriptionStatus, error) {
	url := fmt.Sprintf("%s/api/v1/users/%s/subscription", c.baseURL, ownerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entities.SubscriptionStatus{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entities.SubscriptionStatus{}, pkgerrors.NewUnavailableError(fmt.Sprintf("subscription service unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug().
			Str("owner_id", ownerID).
			Msg("No subscription record, defaulting to free tier")
		return entities.SubscriptionStatus{Tier: entities.TierFree}, nil
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("owner_id", ownerID).
			Msg("Unexpected status code from subscription service")
		return entities.SubscriptionStatus{}, pkgerrors.NewUnavailableError(fmt.Sprintf("subscription service returned %d", resp.StatusCode))
	}

	var result statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return entities.SubscriptionStatus{}, fmt.Errorf("failed to decode subscription response: %w", err)
	}

	return entities.SubscriptionStatus{
		Tier:       entities.Tier(result.Tier),
		IsExpired:  result.IsExpired,
		TelegramID: result.TelegramID,
	}, nil
}
