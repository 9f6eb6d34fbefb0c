// Package fetcher turns a tracked list URL into validated video records.
// Two strategies share one interface: FullScan renders the list page and
// FeedScan reads its syndication feed. Which one runs is decided by the
// caller and passed in explicitly.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/retry"
)

const (
	// FullScanLimit is how many items the site renders on a list page.
	FullScanLimit = 100
	// FeedScanLimit is how many items the site puts in a list feed.
	FeedScanLimit = 30
)

// Result is a successful fetch. Videos are newest first with 1-based
// positions and may be empty.
type Result struct {
	Metadata  models.ListMetadata
	Videos    []models.NormalizedVideo
	FetchedAt time.Time
	Strategy  models.Strategy
}

// Empty reports whether the fetch found no videos. This is an outcome, not
// an error.
func (r *Result) Empty() bool {
	return len(r.Videos) == 0
}

// Fetcher reads one list from the remote site. Every returned error is a
// *FetchError.
type Fetcher interface {
	Strategy() models.Strategy
	Fetch(ctx context.Context, listURL string) (*Result, error)
}

// Getter is the subset of webclient.Client the fetchers need.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options are shared by both strategies.
type Options struct {
	// Policy applies to the list read and to each lookup call.
	Policy            retry.Policy
	LookupConcurrency int
	// Now returns the fetch instant. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) pipeline(svc lookup.Service, limit int, compareUploadTime bool) pipeline {
	return pipeline{
		lookup:            svc,
		policy:            o.Policy,
		lookupConcurrency: o.LookupConcurrency,
		limit:             limit,
		compareUploadTime: compareUploadTime,
	}
}

// Registry maps each strategy to its implementation.
type Registry struct {
	fetchers map[models.Strategy]Fetcher
}

// NewRegistry builds a registry. Registering the same strategy twice is a
// programming error and panics.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[models.Strategy]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		if _, exists := r.fetchers[f.Strategy()]; exists {
			panic(fmt.Sprintf("fetcher for strategy '%s' is already registered", f.Strategy()))
		}
		r.fetchers[f.Strategy()] = f
	}
	return r
}

// Get returns the fetcher for a strategy.
func (r *Registry) Get(s models.Strategy) (Fetcher, bool) {
	f, ok := r.fetchers[s]
	return f, ok
}
