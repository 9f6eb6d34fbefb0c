package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/retry"
	"github.com/vrsandeep/mylist-go/internal/webclient"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, jst)

func testOptions() Options {
	return Options{
		Policy:            retry.Policy{Attempts: 5, Delay: time.Millisecond},
		LookupConcurrency: 2,
		Now:               func() time.Time { return testNow },
	}
}

// fakeSite serves fixed bodies by URL and can fail the first N requests.
type fakeSite struct {
	mu       sync.Mutex
	bodies   map[string]string
	failures map[string]int
	status   map[string]int
	calls    map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		bodies:   map[string]string{},
		failures: map[string]int{},
		status:   map[string]int{},
		calls:    map[string]int{},
	}
}

func (s *fakeSite) Get(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	if code, ok := s.status[url]; ok {
		return nil, &webclient.StatusError{URL: url, StatusCode: code}
	}
	if s.failures[url] > 0 {
		s.failures[url]--
		return nil, &webclient.StatusError{URL: url, StatusCode: 503}
	}
	body, ok := s.bodies[url]
	if !ok {
		return nil, &webclient.StatusError{URL: url, StatusCode: 404}
	}
	return []byte(body), nil
}

func (s *fakeSite) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

// fakeLookup answers from a fixed table; unknown ids are not found.
type fakeLookup struct {
	mu     sync.Mutex
	videos map[string]*lookup.VideoInfo
	errs   map[string]error
	calls  map[string]int
}

func newFakeLookup(videos ...*lookup.VideoInfo) *fakeLookup {
	l := &fakeLookup{videos: map[string]*lookup.VideoInfo{}, errs: map[string]error{}, calls: map[string]int{}}
	for _, v := range videos {
		l.videos[v.VideoID] = v
	}
	return l
}

func (l *fakeLookup) Lookup(ctx context.Context, videoID string) (*lookup.VideoInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[videoID]++
	if err, ok := l.errs[videoID]; ok {
		return nil, err
	}
	v, ok := l.videos[videoID]
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("lookup %s: %w", videoID, lookup.ErrNotFound))
	}
	copied := *v
	return &copied, nil
}

func info(id, title string, uploaded time.Time) *lookup.VideoInfo {
	return &lookup.VideoInfo{
		VideoID:      id,
		Title:        title,
		UploadedAt:   uploaded,
		VideoURL:     "https://www.nicovideo.jp/watch/" + id,
		UploaderName: "uploader-" + id,
	}
}
