// This file defines the tracked list ("mylist") model and the helpers that
// derive its display name, kind and feed location from the list URL.

package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ListKind identifies what kind of collection a tracked list points at.
type ListKind string

const (
	ListKindUploaded ListKind = "uploaded" // an uploader's full upload history
	ListKindMylist   ListKind = "mylist"   // a user-curated list
	ListKindSeries   ListKind = "series"
)

// Valid reports whether k is one of the known kinds.
func (k ListKind) Valid() bool {
	switch k {
	case ListKindUploaded, ListKindMylist, ListKindSeries:
		return true
	}
	return false
}

// TrackedList is one monitored collection. URL is the business key; ID is
// only used for display ordering and may be swapped with another list's.
type TrackedList struct {
	ID             int64    `json:"id"`
	URL            string   `json:"url"`
	OwnerName      string   `json:"owner_name"`
	CollectionName string   `json:"collection_name"`
	Kind           ListKind `json:"list_kind"`
	DisplayName    string   `json:"display_name"`

	CreatedAt                time.Time  `json:"created_at"`
	ContentUpdatedAt         *time.Time `json:"content_updated_at,omitempty"` // Nullable, set when a fetch found unseen videos
	LastCheckedAt            *time.Time `json:"last_checked_at,omitempty"`    // Nullable, set on every fetch attempt
	CheckInterval            string     `json:"check_interval"`               // e.g. "15分" or "15m"
	ConsecutiveCheckFailures int        `json:"consecutive_check_failures"`
	HasUnread                bool       `json:"has_unread"`
}

// DisplayName builds the human readable list name from its parts. The
// template is fixed per kind.
func DisplayName(kind ListKind, ownerName, collectionName string) string {
	switch kind {
	case ListKindUploaded:
		return fmt.Sprintf("%sさんの投稿動画", ownerName)
	case ListKindSeries:
		return fmt.Sprintf("「%s」-%sさんのシリーズ", collectionName, ownerName)
	default:
		return fmt.Sprintf("「%s」-%sさんのマイリスト", collectionName, ownerName)
	}
}

var (
	uploadedURLPattern = regexp.MustCompile(`/user/\d+/video/?$`)
	mylistURLPattern   = regexp.MustCompile(`(/user/\d+)?/mylist/\d+/?$`)
	seriesURLPattern   = regexp.MustCompile(`(/user/\d+)?/series/\d+/?$`)
)

// ListKindFromURL classifies a list URL by its path.
func ListKindFromURL(listURL string) (ListKind, error) {
	u, err := url.Parse(listURL)
	if err != nil {
		return "", fmt.Errorf("invalid list url %q: %w", listURL, err)
	}
	switch {
	case uploadedURLPattern.MatchString(u.Path):
		return ListKindUploaded, nil
	case mylistURLPattern.MatchString(u.Path):
		return ListKindMylist, nil
	case seriesURLPattern.MatchString(u.Path):
		return ListKindSeries, nil
	}
	return "", fmt.Errorf("unrecognised list url %q", listURL)
}

// ResolveListURL makes a list reference absolute against the site base URL,
// so "/user/1/mylist/2" can be given instead of the full address. Absolute
// references are returned unchanged.
func ResolveListURL(baseURL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid list url %q: %w", ref, err)
	}
	if u.IsAbs() || baseURL == "" {
		return u.String(), nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid site base url %q: %w", baseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

// FeedURL returns the syndication feed variant of a list URL.
func FeedURL(listURL string) (string, error) {
	u, err := url.Parse(listURL)
	if err != nil {
		return "", fmt.Errorf("invalid list url %q: %w", listURL, err)
	}
	q := u.Query()
	q.Set("rss", "2.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
