package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vrsandeep/mylist-go/internal/fetcher"
	"github.com/vrsandeep/mylist-go/internal/models"
)

// StubFetcher serves canned videos per list URL. Lists without an entry
// fetch as empty.
type StubFetcher struct {
	Kind   models.Strategy
	Videos map[string][]models.NormalizedVideo
	Errs   map[string]error
	// Block, when set, is received from before every fetch returns.
	Block chan struct{}

	mu    sync.Mutex
	calls int
}

func NewStubFetcher(kind models.Strategy) *StubFetcher {
	return &StubFetcher{
		Kind:   kind,
		Videos: map[string][]models.NormalizedVideo{},
		Errs:   map[string]error{},
	}
}

func (f *StubFetcher) Strategy() models.Strategy { return f.Kind }

func (f *StubFetcher) Fetch(ctx context.Context, listURL string) (*fetcher.Result, error) {
	f.mu.Lock()
	f.calls++
	videos, err := f.Videos[listURL], f.Errs[listURL]
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, &fetcher.FetchError{ListURL: listURL, Kind: fetcher.ErrExhausted, Err: err}
	}
	kind, _ := models.ListKindFromURL(listURL)
	return &fetcher.Result{
		Metadata:  models.ListMetadata{ListURL: listURL, Kind: kind},
		Videos:    videos,
		FetchedAt: time.Now(),
		Strategy:  f.Kind,
	}, nil
}

// Calls returns how many fetches were made.
func (f *StubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Video builds a normalized video with the given id at position pos.
func Video(id string, pos int) models.NormalizedVideo {
	uploaded := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(pos) * time.Hour)
	return models.NormalizedVideo{
		Position:     pos,
		VideoID:      id,
		Title:        "title " + id,
		UploaderName: "uploader",
		UploadedAt:   uploaded,
		RegisteredAt: uploaded,
		VideoURL:     "https://www.nicovideo.jp/watch/" + id,
	}
}
