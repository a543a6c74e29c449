package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
)

// RoutingIndex maps a source channel id to the feeds that consume it.
// An index is built once per registration and replaced wholesale; it is never
// mutated in place.
type RoutingIndex map[int64][]entities.Feed

// BuildIndex derives the source-to-feeds routing table from a feed set
func BuildIndex(feeds []entities.Feed) RoutingIndex {
	index := make(RoutingIndex)
	for _, feed := range feeds {
		for _, sourceID := range feed.SourceChannelIDs {
			index[sourceID] = append(index[sourceID], feed)
		}
	}
	return index
}

// Fingerprint computes a deterministic digest of an owner's routing-relevant
// state: the feed set sorted by id in canonical JSON, plus tier and expiry.
// Record timestamps are zeroed first so that a touch without a config change
// does not force re-registration.
func Fingerprint(feeds []entities.Feed, status entities.SubscriptionStatus) string {
	sorted := make([]entities.Feed, len(feeds))
	copy(sorted, feeds)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	h := sha256.New()
	for _, feed := range sorted {
		feed.CreatedAt = time.Time{}
		feed.UpdatedAt = time.Time{}
		raw, err := json.Marshal(feed)
		if err != nil {
			// Feed is a plain data struct; marshalling cannot realistically
			// fail, but a degraded fingerprint must still be deterministic.
			raw = []byte(feed.ID)
		}
		h.Write(raw)
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%s|%t", status.Tier, status.IsExpired)

	return hex.EncodeToString(h.Sum(nil))
}
