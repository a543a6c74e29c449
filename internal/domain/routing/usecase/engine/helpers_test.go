package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/deps"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/dto"
	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
	domainerrors "github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/errors"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func testFeed(id, ownerID string, sources []int64, destination int64) entities.Feed {
	return entities.Feed{
		ID:                   id,
		OwnerID:              ownerID,
		Name:                 "feed " + id,
		SourceChannelIDs:     sources,
		DestinationChannelID: destination,
		Active:               true,
	}
}

// fakeCounter is an in-memory RateLimitCounter with a controllable clock
type fakeCounter struct {
	mu     sync.Mutex
	now    time.Time
	counts map[string]int64
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{
		now:    time.Unix(1700000000, 0),
		counts: make(map[string]int64),
	}
}

func (c *fakeCounter) Increment(_ context.Context, userID, key string, window entities.Window) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, c.err
	}

	bucket := c.now.Unix() / window.Seconds()
	k := fmt.Sprintf("%s:%s:%s:%d", userID, key, window, bucket)
	c.counts[k]++
	return c.counts[k], nil
}

func (c *fakeCounter) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeCounter) touched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

func (c *fakeCounter) total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum int64
	for _, n := range c.counts {
		sum += n
	}
	return sum
}

// fakeFeedStore is an in-memory FeedStore
type fakeFeedStore struct {
	mu      sync.Mutex
	feeds   map[string]*entities.Feed
	listErr error
}

func newFakeFeedStore(feeds ...entities.Feed) *fakeFeedStore {
	s := &fakeFeedStore{feeds: make(map[string]*entities.Feed)}
	for i := range feeds {
		f := feeds[i]
		s.feeds[f.ID] = &f
	}
	return s
}

func (s *fakeFeedStore) ListActiveFeeds(context.Context) ([]entities.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	var active []entities.Feed
	for _, f := range s.feeds {
		if f.Active {
			active = append(active, *f)
		}
	}
	return active, nil
}

func (s *fakeFeedStore) UpdateFeed(_ context.Context, ownerID, feedID string, update dto.FeedUpdate) (*entities.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[feedID]
	if !ok || feed.OwnerID != ownerID {
		return nil, domainerrors.ErrFeedNotFound
	}

	if update.Active != nil {
		feed.Active = *update.Active
	}
	if update.Error != nil {
		feed.Error = update.Error
	}
	if update.ClearError {
		feed.Error = nil
	}

	copied := *feed
	return &copied, nil
}

func (s *fakeFeedStore) DisableFeeds(_ context.Context, feedIDs []string, errorCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range feedIDs {
		if feed, ok := s.feeds[id]; ok {
			feed.Active = false
			code := errorCode
			feed.Error = &code
		}
	}
	return nil
}

func (s *fakeFeedStore) get(id string) entities.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.feeds[id]
}

func (s *fakeFeedStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[id].Active = active
}

// disabledEvent records one EventProducer call
type disabledEvent struct {
	ownerID   string
	feedIDs   []string
	errorCode string
}

type fakeProducer struct {
	mu     sync.Mutex
	events []disabledEvent
}

func (p *fakeProducer) SendFeedsDisabled(_ context.Context, ownerID string, feedIDs []string, errorCode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, disabledEvent{ownerID: ownerID, feedIDs: feedIDs, errorCode: errorCode})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// forwardCall records one Connection.Forward invocation
type forwardCall struct {
	to         entities.Peer
	from       entities.Peer
	messageIDs []int64
	scheduleAt *time.Time
}

// fakeConnection simulates one owner's live link
type fakeConnection struct {
	mu               sync.Mutex
	authenticated    bool
	subscribeErr     error
	handler          deps.MessageHandler
	subscribeCount   int
	unsubscribeCount int

	peers        map[int64]entities.Peer
	refreshPeers map[int64]entities.Peer
	channelPeers map[int64]entities.Peer
	refreshed    bool
	resolveErr   error

	forwardErr error
	forwards   []forwardCall
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		authenticated: true,
		peers:         make(map[int64]entities.Peer),
		refreshPeers:  make(map[int64]entities.Peer),
		channelPeers:  make(map[int64]entities.Peer),
	}
}

func (c *fakeConnection) IsAuthenticated(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated, nil
}

func (c *fakeConnection) Subscribe(handler deps.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handler = handler
	c.subscribeCount++
	return nil
}

func (c *fakeConnection) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	c.unsubscribeCount++
}

func (c *fakeConnection) ResolveDestination(_ context.Context, peerID int64) (*entities.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolveErr != nil {
		return nil, c.resolveErr
	}
	if peer, ok := c.peers[peerID]; ok {
		return &peer, nil
	}
	if c.refreshed {
		if peer, ok := c.refreshPeers[peerID]; ok {
			return &peer, nil
		}
	}
	return nil, domainerrors.ErrPeerNotFound
}

func (c *fakeConnection) ResolveChannel(_ context.Context, channelID int64) (*entities.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if peer, ok := c.channelPeers[channelID]; ok {
		return &peer, nil
	}
	return nil, domainerrors.ErrPeerNotFound
}

func (c *fakeConnection) RefreshDialogs(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed = true
	return nil
}

func (c *fakeConnection) Forward(_ context.Context, to, from entities.Peer, messageIDs []int64, scheduleAt *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forwardErr != nil {
		return c.forwardErr
	}
	ids := make([]int64, len(messageIDs))
	copy(ids, messageIDs)
	c.forwards = append(c.forwards, forwardCall{to: to, from: from, messageIDs: ids, scheduleAt: scheduleAt})
	return nil
}

// emit delivers one event through the installed handler, as the platform would
func (c *fakeConnection) emit(msg *entities.Message) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		handler(context.Background(), msg)
	}
}

func (c *fakeConnection) forwardCalls() []forwardCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]forwardCall, len(c.forwards))
	copy(calls, c.forwards)
	return calls
}

func (c *fakeConnection) counts() (subscribed, unsubscribed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeCount, c.unsubscribeCount
}

func (c *fakeConnection) hasHandler() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// fakeProvider hands out fakeConnections per owner. With fresh set it
// returns a brand-new connection on every call, like the gateway provider
// does, instead of reusing one per owner.
type fakeProvider struct {
	mu    sync.Mutex
	conns map[string]*fakeConnection
	all   []*fakeConnection
	fresh bool
	err   error
	calls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{conns: make(map[string]*fakeConnection)}
}

func (p *fakeProvider) GetConnection(_ context.Context, ownerID string, _ []byte) (deps.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.fresh {
		conn := newFakeConnection()
		p.all = append(p.all, conn)
		return conn, nil
	}
	conn, ok := p.conns[ownerID]
	if !ok {
		conn = newFakeConnection()
		p.conns[ownerID] = conn
	}
	return conn, nil
}

func (p *fakeProvider) conn(ownerID string) *fakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[ownerID]
	if !ok {
		conn = newFakeConnection()
		p.conns[ownerID] = conn
	}
	return conn
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeCredentials returns preset session blobs
type fakeCredentials struct {
	blobs map[string][]byte
}

func newFakeCredentials(owners ...string) *fakeCredentials {
	c := &fakeCredentials{blobs: make(map[string][]byte)}
	for _, owner := range owners {
		c.blobs[owner] = []byte("session-" + owner)
	}
	return c
}

func (c *fakeCredentials) GetSessionBlob(_ context.Context, ownerID string) ([]byte, error) {
	return c.blobs[ownerID], nil
}

// fakeSubscriptions returns preset subscription statuses
type fakeSubscriptions struct {
	mu       sync.Mutex
	statuses map[string]entities.SubscriptionStatus
	err      error
}

func newFakeSubscriptions() *fakeSubscriptions {
	return &fakeSubscriptions{statuses: make(map[string]entities.SubscriptionStatus)}
}

func (s *fakeSubscriptions) GetStatus(_ context.Context, ownerID string) (entities.SubscriptionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return entities.SubscriptionStatus{}, s.err
	}
	status, ok := s.statuses[ownerID]
	if !ok {
		return entities.SubscriptionStatus{Tier: entities.TierPremiumAdvanced}, nil
	}
	return status, nil
}

func (s *fakeSubscriptions) set(ownerID string, status entities.SubscriptionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[ownerID] = status
}
