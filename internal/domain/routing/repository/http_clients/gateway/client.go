package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
	pkgerrors "github.com/yourusername/telegram-feed-router/router-service/pkg/errors"
)

// reconnectDelay paces event-stream reconnects after a broken read
const reconnectDelay = 2 * time.Second

// Provider talks to the MTProto gateway's internal HTTP API. The gateway owns
// the actual platform connections, protocol framing and entity storage; this
// client only asks it to attach a session, stream live message events and
// perform forwards.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewProvider creates a gateway connection provider
func NewProvider(cfg *config.GatewayConfig, logger zerolog.Logger) deps.ConnectionProvider {
	provider := &Provider{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}

	logger.Info().
		Str("base_url", cfg.URL).
		Msg("Gateway client initialized")

	return provider
}

type attachRequest struct {
	UserID  string `json:"user_id"`
	Session []byte `json:"session"`
}

// GetConnection attaches the owner's session on the gateway and returns the
// handle for it. Attaching is idempotent: an already-connected owner is reused.
func (p *Provider) GetConnection(ctx context.Context, ownerID string, sessionBlob []byte) (deps.Connection, error) {
	body, err := json.Marshal(attachRequest{UserID: ownerID, Session: sessionBlob})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/clients", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.NewUnavailableError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusGone:
		return nil, domainerrors.ErrSessionRevoked
	default:
		return nil, pkgerrors.NewUnavailableError(fmt.Sprintf("gateway returned %d attaching client", resp.StatusCode))
	}

	return &connection{
		ownerID:    ownerID,
		baseURL:    p.baseURL,
		httpClient: p.httpClient,
		// The event stream stays open indefinitely, so it cannot share the
		// RPC client's timeout.
		streamClient: &http.Client{},
		logger:       p.logger.With().Str("owner_id", ownerID).Logger(),
	}, nil
}

// connection is one owner's live link through the gateway
type connection struct {
	ownerID      string
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       zerolog.Logger

	mu           sync.Mutex
	cancelStream context.CancelFunc
}

type sessionStatusResponse struct {
	Authenticated bool `json:"authenticated"`
}

// IsAuthenticated reports whether the attached session is usable
func (c *connection) IsAuthenticated(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/clients/%s/session", c.baseURL, c.ownerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, pkgerrors.NewUnavailableError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, pkgerrors.NewUnavailableError(fmt.Sprintf("gateway returned %d checking session", resp.StatusCode))
	}

	var result sessionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode session status: %w", err)
	}

	return result.Authenticated, nil
}

// Subscribe starts consuming the owner's live message events. The handler is
// invoked sequentially in platform delivery order.
func (c *connection) Subscribe(handler deps.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelStream != nil {
		c.cancelStream()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelStream = cancel

	go c.consumeEvents(ctx, handler)
	return nil
}

// UnsubscribeAll stops the event stream. Stopping a connection without one is
// not an error.
func (c *connection) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelStream != nil {
		c.cancelStream()
		c.cancelStream = nil
	}
}

func (c *connection) consumeEvents(ctx context.Context, handler deps.MessageHandler) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.streamOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("Event stream interrupted, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

type messageEvent struct {
	ID           int64       `json:"id"`
	ChannelID    int64       `json:"channel_id"`
	GroupedID    int64       `json:"grouped_id"`
	Text         string      `json:"text"`
	HasPhoto     bool        `json:"has_photo"`
	HasVideo     bool        `json:"has_video"`
	DocumentMime string      `json:"document_mime"`
	Peer         peerPayload `json:"peer"`
}

type peerPayload struct {
	Kind       string `json:"kind"`
	ID         int64  `json:"id"`
	AccessHash int64  `json:"access_hash"`
}

func (p peerPayload) toEntity() entities.Peer {
	return entities.Peer{
		Kind:       entities.PeerKind(p.Kind),
		ID:         p.ID,
		AccessHash: p.AccessHash,
	}
}

// streamOnce holds one SSE connection open and feeds decoded events to the
// handler until the stream breaks or the context is cancelled.
func (c *connection) streamOnce(ctx context.Context, handler deps.MessageHandler) error {
	url := fmt.Sprintf("%s/api/v1/clients/%s/events", c.baseURL, c.ownerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event messageEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.logger.Warn().Err(err).
				Str("payload", payload).
				Msg("Failed to decode message event")
			continue
		}

		handler(ctx, &entities.Message{
			ID:              event.ID,
			SourceChannelID: event.ChannelID,
			GroupedID:       event.GroupedID,
			Text:            event.Text,
			HasPhoto:        event.HasPhoto,
			HasVideo:        event.HasVideo,
			DocumentMime:    event.DocumentMime,
			Peer:            event.Peer.toEntity(),
		})
	}

	return scanner.Err()
}

type resolveRequest struct {
	PeerID int64  `json:"peer_id"`
	Kind   string `json:"kind,omitempty"`
}

// ResolveDestination looks up an identity handle for a peer id
func (c *connection) ResolveDestination(ctx context.Context, peerID int64) (*entities.Peer, error) {
	return c.resolve(ctx, resolveRequest{PeerID: peerID})
}

// ResolveChannel resolves a peer id explicitly as a channel reference
func (c *connection) ResolveChannel(ctx context.Context, channelID int64) (*entities.Peer, error) {
	return c.resolve(ctx, resolveRequest{PeerID: channelID, Kind: string(entities.PeerChannel)})
}

func (c *connection) resolve(ctx context.Context, reqBody resolveRequest) (*entities.Peer, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolve request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/clients/%s/peers/resolve", c.baseURL, c.ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.NewUnavailableError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domainerrors.ErrPeerNotFound
	default:
		return nil, pkgerrors.NewUnavailableError(fmt.Sprintf("gateway returned %d resolving peer", resp.StatusCode))
	}

	var result peerPayload
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode peer: %w", err)
	}

	peer := result.toEntity()
	return &peer, nil
}

// RefreshDialogs refreshes the gateway's known-peer list for this owner
func (c *connection) RefreshDialogs(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/clients/%s/dialogs/refresh", c.baseURL, c.ownerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.NewUnavailableError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return pkgerrors.NewUnavailableError(fmt.Sprintf("gateway returned %d refreshing dialogs", resp.StatusCode))
	}

	return nil
}

type forwardRequest struct {
	To         peerPayload `json:"to"`
	From       peerPayload `json:"from"`
	MessageIDs []int64     `json:"message_ids"`
	ScheduleAt *time.Time  `json:"schedule_at,omitempty"`
}

// Forward forwards messages, optionally scheduled at an absolute time on the
// platform side so the caller never sleeps locally.
func (c *connection) Forward(ctx context.Context, to, from entities.Peer, messageIDs []int64, scheduleAt *time.Time) error {
	body, err := json.Marshal(forwardRequest{
		To:         peerPayload{Kind: string(to.Kind), ID: to.ID, AccessHash: to.AccessHash},
		From:       peerPayload{Kind: string(from.Kind), ID: from.ID, AccessHash: from.AccessHash},
		MessageIDs: messageIDs,
		ScheduleAt: scheduleAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal forward request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/clients/%s/forward", c.baseURL, c.ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.NewUnavailableError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusForbidden:
		return domainerrors.ErrDestinationForbidden
	case http.StatusNotFound, http.StatusGone:
		return domainerrors.ErrPeerNotFound
	case http.StatusUnauthorized:
		return domainerrors.ErrSessionRevoked
	default:
		return pkgerrors.NewUnavailableError(fmt.Sprintf("gateway returned %d forwarding messages", resp.StatusCode))
	}
}
