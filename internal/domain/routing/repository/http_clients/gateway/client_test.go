package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/config"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
	pkgerrors "github.com/yourusername/telegram-feed-router/router-service/pkg/errors"
)

func newTestProvider(serverURL string) deps.ConnectionProvider {
	cfg := &config.GatewayConfig{URL: serverURL, Timeout: 5 * time.Second}
	return NewProvider(cfg, zerolog.Nop())
}

func attach(t *testing.T, serverURL string) deps.Connection {
	t.Helper()
	conn, err := newTestProvider(serverURL).GetConnection(context.Background(), "owner1", []byte("blob"))
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	return conn
}

func TestGetConnection(t *testing.T) {
	var gotBody attachRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/clients" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode attach body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	conn := attach(t, server.URL)
	if conn == nil {
		t.Fatal("expected a connection")
	}
	if gotBody.UserID != "owner1" || string(gotBody.Session) != "blob" {
		t.Errorf("unexpected attach payload: %+v", gotBody)
	}
}

func TestGetConnectionRevokedSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).GetConnection(context.Background(), "owner1", []byte("blob"))
	if !errors.Is(err, domainerrors.ErrSessionRevoked) {
		t.Errorf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestGetConnectionGatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	_, err := newTestProvider(server.URL).GetConnection(context.Background(), "owner1", []byte("blob"))
	if !pkgerrors.IsUnavailableError(err) {
		t.Errorf("expected an unavailable error, got %v", err)
	}
}

func TestIsAuthenticated(t *testing.T) {
	authenticated := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/clients":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/clients/owner1/session":
			if !authenticated {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(sessionStatusResponse{Authenticated: true})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	conn := attach(t, server.URL)

	ok, err := conn.IsAuthenticated(context.Background())
	if err != nil || !ok {
		t.Errorf("IsAuthenticated() = %v, %v; want true, nil", ok, err)
	}

	// a gateway that lost the session reports false, not an error
	authenticated = false
	ok, err = conn.IsAuthenticated(context.Background())
	if err != nil || ok {
		t.Errorf("IsAuthenticated() = %v, %v; want false, nil", ok, err)
	}
}

func TestSubscribeStreamsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/clients":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/clients/owner1/events":
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "data: {\"id\":1,\"channel_id\":100,\"text\":\"hello\",\"peer\":{\"kind\":\"channel\",\"id\":100}}\n\n")
			fmt.Fprint(w, ": keepalive comment\n")
			fmt.Fprint(w, "data: {\"id\":2,\"channel_id\":100,\"grouped_id\":7,\"has_photo\":true,\"peer\":{\"kind\":\"channel\",\"id\":100}}\n\n")
			flusher.Flush()
			// keep the stream open until the client goes away
			<-r.Context().Done()
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	conn := attach(t, server.URL)

	var mu sync.Mutex
	var received []entities.Message
	got := make(chan struct{}, 8)

	err := conn.Subscribe(func(_ context.Context, msg *entities.Message) {
		mu.Lock()
		received = append(received, *msg)
		mu.Unlock()
		got <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer conn.UnsubscribeAll()

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for streamed events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].ID != 1 || received[0].Text != "hello" || received[0].SourceChannelID != 100 {
		t.Errorf("unexpected first event: %+v", received[0])
	}
	if received[1].GroupedID != 7 || !received[1].HasPhoto {
		t.Errorf("unexpected second event: %+v", received[1])
	}
	if received[0].Peer.Kind != entities.PeerChannel {
		t.Errorf("peer did not decode: %+v", received[0].Peer)
	}
}

func TestResolvePeers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/clients":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/clients/owner1/peers/resolve":
			var req resolveRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode resolve body: %v", err)
			}
			if req.PeerID == 404 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(peerPayload{Kind: req.Kind, ID: req.PeerID, AccessHash: 99})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	conn := attach(t, server.URL)
	ctx := context.Background()

	peer, err := conn.ResolveChannel(ctx, 900)
	if err != nil {
		t.Fatalf("ResolveChannel() error = %v", err)
	}
	if peer.Kind != entities.PeerChannel || peer.ID != 900 || peer.AccessHash != 99 {
		t.Errorf("unexpected peer: %+v", peer)
	}

	if _, err := conn.ResolveDestination(ctx, 404); !errors.Is(err, domainerrors.ErrPeerNotFound) {
		t.Errorf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestForwardStatusMapping(t *testing.T) {
	var status int
	var gotBody forwardRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/clients":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/clients/owner1/forward":
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(status)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	conn := attach(t, server.URL)
	ctx := context.Background()
	to := entities.Peer{Kind: entities.PeerChannel, ID: 900, AccessHash: 5}
	from := entities.Peer{Kind: entities.PeerChannel, ID: 100}

	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"success", http.StatusOK, func(err error) bool { return err == nil }},
		{"forbidden destination", http.StatusForbidden, func(err error) bool { return errors.Is(err, domainerrors.ErrDestinationForbidden) }},
		{"deleted destination", http.StatusGone, func(err error) bool { return errors.Is(err, domainerrors.ErrPeerNotFound) }},
		{"revoked session", http.StatusUnauthorized, func(err error) bool { return errors.Is(err, domainerrors.ErrSessionRevoked) }},
		{"flood wait", http.StatusTooManyRequests, pkgerrors.IsUnavailableError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status = tt.status
			err := conn.Forward(ctx, to, from, []int64{1, 2}, nil)
			if !tt.check(err) {
				t.Errorf("Forward() with %d returned %v", tt.status, err)
			}
		})
	}

	if len(gotBody.MessageIDs) != 2 || gotBody.To.ID != 900 || gotBody.From.ID != 100 {
		t.Errorf("unexpected forward payload: %+v", gotBody)
	}
	if gotBody.ScheduleAt != nil {
		t.Error("expected no schedule time for an immediate forward")
	}
}

func TestForwardCarriesScheduleTime(t *testing.T) {
	var gotBody forwardRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/clients":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/clients/owner1/forward":
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	conn := attach(t, server.URL)
	at := time.Now().UTC().Add(10 * time.Second).Truncate(time.Second)

	err := conn.Forward(context.Background(), entities.Peer{ID: 900}, entities.Peer{ID: 100}, []int64{1}, &at)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotBody.ScheduleAt == nil || !gotBody.ScheduleAt.Equal(at) {
		t.Errorf("expected schedule time %v, got %v", at, gotBody.ScheduleAt)
	}
}

func TestRefreshDialogs(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/clients":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/clients/owner1/dialogs/refresh":
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			called = true
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	conn := attach(t, server.URL)
	if err := conn.RefreshDialogs(context.Background()); err != nil {
		t.Fatalf("RefreshDialogs() error = %v", err)
	}
	if !called {
		t.Error("expected the refresh endpoint to be hit")
	}
}
