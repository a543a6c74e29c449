package entities

import (
	"strings"
	"time"
)

// Tier is the subscription level of a feed owner
type Tier string

const (
	TierFree            Tier = "free"
	TierTrial           Tier = "trial"
	TierPremiumBasic    Tier = "premium_basic"
	TierPremiumAdvanced Tier = "premium_advanced"
)

// AllowsFilters reports whether the tier may use keyword/media filters.
// Filters are an advanced-tier capability; basic paid plans route unfiltered.
func (t Tier) AllowsFilters() bool {
	return t == TierTrial || t == TierPremiumAdvanced
}

// SubscriptionStatus is the read-only billing state of an owner
type SubscriptionStatus struct {
	Tier       Tier   `json:"tier"`
	IsExpired  bool   `json:"is_expired"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

// FilterPolicy holds keyword, media-presence and rate-cap constraints.
// A zero policy passes everything.
type FilterPolicy struct {
	KeywordsInclude    []string `json:"keywords_include,omitempty"`
	KeywordsExclude    []string `json:"keywords_exclude,omitempty"`
	HasImage           *bool    `json:"has_image,omitempty"`
	HasVideo           *bool    `json:"has_video,omitempty"`
	MaxMessagesPerHour *int     `json:"max_messages_per_hour,omitempty"`
	MaxMessagesPerDay  *int     `json:"max_messages_per_day,omitempty"`
}

// HasLimits reports whether the policy carries any rate cap
func (p *FilterPolicy) HasLimits() bool {
	return p != nil && (p.MaxMessagesPerHour != nil || p.MaxMessagesPerDay != nil)
}

// Feed is a routing rule from a set of source channels to one destination channel
type Feed struct {
	ID                   string                  `gorm:"primaryKey" json:"id"`
	OwnerID              string                  `gorm:"not null;index:idx_owner_active" json:"ownerId"`
	Name                 string                  `gorm:"not null" json:"name"`
	SourceChannelIDs     []int64                 `gorm:"serializer:json;type:text;not null" json:"sourceChannelIds"`
	DestinationChannelID int64                   `gorm:"not null" json:"destinationChannelId"`
	Active               bool                    `gorm:"not null;index:idx_owner_active" json:"active"`
	DelayEnabled         bool                    `gorm:"not null" json:"delayEnabled"`
	Filters              *FilterPolicy           `gorm:"serializer:json;type:text" json:"filters,omitempty"`
	SourceFilters        map[int64]*FilterPolicy `gorm:"serializer:json;type:text" json:"sourceFilters,omitempty"`
	Error                *string                 `json:"error,omitempty"`
	CreatedAt            time.Time               `gorm:"autoCreateTime" json:"-"`
	UpdatedAt            time.Time               `gorm:"autoUpdateTime" json:"-"`
}

// TableName returns the table name for Feed
func (Feed) TableName() string {
	return "feeds"
}

// HasAnyFilters reports whether the feed carries a feed-wide or per-source policy
func (f *Feed) HasAnyFilters() bool {
	return f.Filters != nil || len(f.SourceFilters) > 0
}

// SourceFilter returns the per-source policy for sourceID, or nil
func (f *Feed) SourceFilter(sourceID int64) *FilterPolicy {
	if f.SourceFilters == nil {
		return nil
	}
	return f.SourceFilters[sourceID]
}

// StoredSession is an owner's persisted chat-platform credential
type StoredSession struct {
	UserID      string    `gorm:"primaryKey" json:"userId"`
	SessionBlob []byte    `json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for StoredSession
func (StoredSession) TableName() string {
	return "sessions"
}

// PeerKind distinguishes how a peer id must be resolved on the platform
type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// Peer is a resolved identity handle for a platform chat entity
type Peer struct {
	Kind       PeerKind `json:"kind"`
	ID         int64    `json:"id"`
	AccessHash int64    `json:"access_hash,omitempty"`
}

// Message is one live event from an owner's connection. GroupedID is non-zero
// for members of a multi-attachment post (album).
type Message struct {
	ID              int64
	SourceChannelID int64
	GroupedID       int64
	Text            string
	HasPhoto        bool
	HasVideo        bool
	DocumentMime    string
	Peer            Peer
}

// HasVideoContent reports a video attachment or a document declaring a video
// media type.
func (m *Message) HasVideoContent() bool {
	return m.HasVideo || strings.HasPrefix(m.DocumentMime, "video/")
}

// Window identifies a rate-limit bucket length
type Window string

const (
	WindowHour Window = "hour"
	WindowDay  Window = "day"
)

// Seconds returns the window length in seconds
func (w Window) Seconds() int64 {
	if w == WindowDay {
		return 86400
	}
	return 3600
}
