package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/retry"
)

var videoIDPattern = regexp.MustCompile(`/watch/([a-z]{2}\d+)`)

// videoIDFromURL extracts the id segment of a watch URL.
func videoIDFromURL(videoURL string) string {
	if m := videoIDPattern.FindStringSubmatch(videoURL); m != nil {
		return m[1]
	}
	return ""
}

// normalizeVideoURL drops query and fragment so tracking parameters on
// page links do not break comparison with the lookup service.
func normalizeVideoURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u.String()
}

// candidate is one video as read from the primary source, before the lookup.
type candidate struct {
	VideoID      string
	Title        string
	VideoURL     string
	UploaderName string
	// UploadedAt is the primary source's upload time, zero when unknown.
	UploadedAt time.Time
	// UploadedAtExact is set when UploadedAt came from an absolute timestamp
	// and can be compared with the lookup at minute precision.
	UploadedAtExact bool
	// RegisteredAt is zero when the source has no registration time; the
	// authoritative upload time is used instead.
	RegisteredAt time.Time
}

// pipeline holds the steps shared by both strategies: cleanup of the raw
// candidates, cross-validation against the lookup service and final
// ordering.
type pipeline struct {
	lookup            lookup.Service
	policy            retry.Policy
	lookupConcurrency int
	limit             int
	compareUploadTime bool
}

// normalize turns raw candidates into validated videos. now is the instant
// the list was read at.
func (p *pipeline) normalize(ctx context.Context, listURL string, now time.Time, raw []candidate) ([]models.NormalizedVideo, error) {
	seen := make(map[string]bool, len(raw))
	var candidates []candidate
	for i, c := range raw {
		if c.VideoID == "" || c.Title == "" || c.VideoURL == "" {
			return nil, fmt.Errorf("%w: item %d is missing id, title or url", ErrMalformed, i+1)
		}
		if seen[c.VideoID] {
			continue
		}
		seen[c.VideoID] = true
		if !c.UploadedAt.IsZero() && c.UploadedAt.After(now) {
			log.Debug("Skipping scheduled video", "list", listURL, "video", c.VideoID, "at", c.UploadedAt)
			continue
		}
		candidates = append(candidates, c)
	}
	if p.limit > 0 && len(candidates) > p.limit {
		candidates = candidates[:p.limit]
	}

	infos, err := p.lookupAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	videos := make([]models.NormalizedVideo, 0, len(candidates))
	for i, c := range candidates {
		info := infos[i]
		if info == nil {
			log.Warn("Video no longer exists, leaving it out", "list", listURL, "video", c.VideoID)
			continue
		}
		if err := p.crossCheck(c, info); err != nil {
			return nil, err
		}
		if info.UploadedAt.After(now) {
			continue
		}

		uploader := info.UploaderName
		if uploader == "" {
			uploader = c.UploaderName
		}
		registered := c.RegisteredAt
		if registered.IsZero() {
			registered = info.UploadedAt
		}
		videos = append(videos, models.NormalizedVideo{
			Position:     len(videos) + 1,
			VideoID:      c.VideoID,
			Title:        info.Title,
			UploaderName: uploader,
			UploadedAt:   info.UploadedAt,
			RegisteredAt: registered,
			VideoURL:     normalizeVideoURL(info.VideoURL),
		})
	}
	return videos, nil
}

func (p *pipeline) crossCheck(c candidate, info *lookup.VideoInfo) error {
	if c.Title != info.Title {
		return fmt.Errorf("%w: %s title %q, lookup says %q", ErrValidationMismatch, c.VideoID, c.Title, info.Title)
	}
	if normalizeVideoURL(c.VideoURL) != normalizeVideoURL(info.VideoURL) {
		return fmt.Errorf("%w: %s url %q, lookup says %q", ErrValidationMismatch, c.VideoID, c.VideoURL, info.VideoURL)
	}
	if p.compareUploadTime && c.UploadedAtExact {
		page := c.UploadedAt.Truncate(time.Minute)
		authoritative := info.UploadedAt.Truncate(time.Minute)
		if !page.Equal(authoritative) {
			return fmt.Errorf("%w: %s uploaded %s, lookup says %s", ErrValidationMismatch, c.VideoID,
				c.UploadedAt.Format(time.RFC3339), info.UploadedAt.Format(time.RFC3339))
		}
	}
	return nil
}

// lookupAll resolves every candidate with bounded concurrency. The result is
// aligned with candidates; a nil entry means the video no longer exists.
// The first hard failure cancels the remaining lookups.
func (p *pipeline) lookupAll(ctx context.Context, candidates []candidate) ([]*lookup.VideoInfo, error) {
	infos := make([]*lookup.VideoInfo, len(candidates))
	if len(candidates) == 0 {
		return infos, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := p.lookupConcurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, videoID string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			var info *lookup.VideoInfo
			err := retry.Do(ctx, p.policy, retryable, func(ctx context.Context) error {
				var err error
				info, err = p.lookup.Lookup(ctx, videoID)
				return permanentHTTP(err)
			})
			if errors.Is(err, lookup.ErrNotFound) {
				return
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("lookup %s: %w", videoID, err)
					cancel()
				}
				mu.Unlock()
				return
			}
			infos[i] = info
		}(i, c.VideoID)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}
