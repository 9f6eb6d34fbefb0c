package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vrsandeep/mylist-go/internal/fetcher"
	"github.com/vrsandeep/mylist-go/internal/models"
)

// fakeFetcher returns canned results per list URL and tracks concurrency.
type fakeFetcher struct {
	strategy models.Strategy
	now      func() time.Time
	delay    time.Duration

	mu          sync.Mutex
	videos      map[string][]models.NormalizedVideo
	errs        map[string]error
	panics      map[string]bool
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

func newFakeFetcher(strategy models.Strategy, now func() time.Time) *fakeFetcher {
	return &fakeFetcher{
		strategy: strategy,
		now:      now,
		videos:   map[string][]models.NormalizedVideo{},
		errs:     map[string]error{},
		panics:   map[string]bool{},
		calls:    map[string]int{},
	}
}

func (f *fakeFetcher) Strategy() models.Strategy { return f.strategy }

func (f *fakeFetcher) Fetch(ctx context.Context, listURL string) (*fetcher.Result, error) {
	f.mu.Lock()
	f.calls[listURL]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	videos, err, shouldPanic := f.videos[listURL], f.errs[listURL], f.panics[listURL]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if shouldPanic {
		panic("boom")
	}
	if err != nil {
		return nil, &fetcher.FetchError{ListURL: listURL, Kind: fetcher.ErrExhausted, Err: err}
	}
	kind, _ := models.ListKindFromURL(listURL)
	return &fetcher.Result{
		Metadata:  models.ListMetadata{ListURL: listURL, Kind: kind},
		Videos:    videos,
		FetchedAt: f.now(),
		Strategy:  f.strategy,
	}, nil
}

func (f *fakeFetcher) callCount(listURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[listURL]
}

var errUnreachable = errors.New("remote site unreachable")

func testVideo(id string, pos int) models.NormalizedVideo {
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

// progressRecorder collects reports from concurrent workers.
type progressRecorder struct {
	mu      sync.Mutex
	reports map[Phase][]int
	totals  map[Phase]int
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{reports: map[Phase][]int{}, totals: map[Phase]int{}}
}

func (p *progressRecorder) Report(phase Phase, listURL string, completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports[phase] = append(p.reports[phase], completed)
	p.totals[phase] = total
}
