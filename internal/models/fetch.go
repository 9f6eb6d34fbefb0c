package models

import "time"

// Strategy names a remote fetch implementation.
type Strategy string

const (
	StrategyFullScan Strategy = "full_scan" // rendered page, up to ~100 items
	StrategyFeedScan Strategy = "feed_scan" // syndication feed, ~30 most recent items
)

// ListMetadata is the list-level information read alongside the videos.
type ListMetadata struct {
	ListURL        string
	Kind           ListKind
	OwnerName      string
	CollectionName string
}

// DisplayName returns the templated name for the fetched metadata.
func (m *ListMetadata) DisplayName() string {
	return DisplayName(m.Kind, m.OwnerName, m.CollectionName)
}

// ListBookkeeping is the set of freshness fields written after each fetch.
// ContentUpdatedAt is only written when non-nil.
type ListBookkeeping struct {
	URL                      string
	LastCheckedAt            time.Time
	ContentUpdatedAt         *time.Time
	ConsecutiveCheckFailures int
	HasUnread                bool
}
