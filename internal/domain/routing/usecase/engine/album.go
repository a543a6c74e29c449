package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
)

type albumKey struct {
	sourceID int64
	groupID  int64
}

// pendingAlbum accumulates the members of one grouped post. The feed list is
// resolved once, from the first message of the group; later members join the
// id set without re-evaluation. gen invalidates stale debounce timers that
// lost the race against a restart.
type pendingAlbum struct {
	messageIDs []int64
	feeds      []entities.Feed
	sourcePeer entities.Peer
	timer      *time.Timer
	gen        uint64
}

// FlushFunc receives a completed album: the full sorted id list plus the feed
// set approved against the group's first message.
type FlushFunc func(sourceID int64, sourcePeer entities.Peer, messageIDs []int64, feeds []entities.Feed)

// Aggregator coalesces bursts of grouped messages into one delivery unit per
// group. A group flushes only after the debounce window passes with no new
// member, so slow multi-part uploads land as a single unit. Buffers are never
// persisted; a restart drops whatever is mid-flight.
type Aggregator struct {
	mu       sync.Mutex
	pending  map[albumKey]*pendingAlbum
	debounce time.Duration
	flush    FlushFunc
	logger   zerolog.Logger
}

// NewAggregator creates an album aggregator with the given debounce window
func NewAggregator(debounce time.Duration, flush FlushFunc, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		pending:  make(map[albumKey]*pendingAlbum),
		debounce: debounce,
		flush:    flush,
		logger:   logger,
	}
}

// Extend adds a message id to an already open album and restarts its debounce
// timer. It reports false when no album is open for the group, in which case
// the caller evaluates eligibility and calls Open.
func (a *Aggregator) Extend(sourceID, groupID, messageID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := albumKey{sourceID: sourceID, groupID: groupID}
	album, ok := a.pending[key]
	if !ok {
		return false
	}

	album.messageIDs = append(album.messageIDs, messageID)
	a.restartLocked(key, album)
	return true
}

// Open creates the album for a group's first message with its approved feeds
// and arms the debounce timer.
func (a *Aggregator) Open(sourceID, groupID int64, msg *entities.Message, feeds []entities.Feed) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := albumKey{sourceID: sourceID, groupID: groupID}
	album := &pendingAlbum{
		messageIDs: []int64{msg.ID},
		feeds:      feeds,
		sourcePeer: msg.Peer,
	}
	a.pending[key] = album
	a.restartLocked(key, album)

	a.logger.Debug().
		Int64("source_id", sourceID).
		Int64("group_id", groupID).
		Int64("message_id", msg.ID).
		Msg("Album buffer opened")
}

// Abandon cancels every pending album without flushing. Cancelled timers are
// a no-op, not an error.
func (a *Aggregator) Abandon() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, album := range a.pending {
		album.timer.Stop()
		album.gen++
		delete(a.pending, key)
	}
}

// Pending returns the number of open album buffers
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// restartLocked cancels the old timer, if any, and arms a fresh one.
// Callers must hold a.mu.
func (a *Aggregator) restartLocked(key albumKey, album *pendingAlbum) {
	if album.timer != nil {
		album.timer.Stop()
	}
	album.gen++
	gen := album.gen
	album.timer = time.AfterFunc(a.debounce, func() {
		a.flushExpired(key, gen)
	})
}

// flushExpired hands a quiet album to the flush callback. A timer that was
// superseded by a restart or an abandon finds a mismatched generation and
// does nothing.
func (a *Aggregator) flushExpired(key albumKey, gen uint64) {
	a.mu.Lock()
	album, ok := a.pending[key]
	if !ok || album.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	a.mu.Unlock()

	sort.Slice(album.messageIDs, func(i, j int) bool {
		return album.messageIDs[i] < album.messageIDs[j]
	})

	a.logger.Debug().
		Int64("source_id", key.sourceID).
		Int64("group_id", key.groupID).
		Int("message_count", len(album.messageIDs)).
		Msg("Album buffer flushed")

	a.flush(key.sourceID, album.sourcePeer, album.messageIDs, album.feeds)
}
