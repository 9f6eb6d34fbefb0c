package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mmcdole/gofeed"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/retry"
)

const feedTitleSuffix = "‐ニコニコ動画"

// FeedScan reads the list's RSS feed. It is cheap but only carries the
// FeedScanLimit most recent items and no registration times, so it is only
// used for lists that already have stored history.
type FeedScan struct {
	getter   Getter
	parser   *gofeed.Parser
	opts     Options
	pipeline pipeline
}

// NewFeedScan creates the feed-reading strategy.
func NewFeedScan(getter Getter, svc lookup.Service, opts Options) *FeedScan {
	return &FeedScan{
		getter:   getter,
		parser:   gofeed.NewParser(),
		opts:     opts,
		pipeline: opts.pipeline(svc, FeedScanLimit, false),
	}
}

func (f *FeedScan) Strategy() models.Strategy {
	return models.StrategyFeedScan
}

func (f *FeedScan) Fetch(ctx context.Context, listURL string) (*Result, error) {
	now := f.opts.now()
	kind, err := models.ListKindFromURL(listURL)
	if err != nil {
		return nil, wrapError(listURL, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	feedURL, err := models.FeedURL(listURL)
	if err != nil {
		return nil, wrapError(listURL, fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	var feed *gofeed.Feed
	err = retry.Do(ctx, f.opts.Policy, retryable, func(ctx context.Context) error {
		body, err := f.getter.Get(ctx, feedURL)
		if err != nil {
			return permanentHTTP(err)
		}
		parsed, err := f.parser.Parse(bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("%w: parsing feed: %v", ErrMalformed, err))
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return nil, wrapError(listURL, err)
	}

	meta := feedMetadata(feed, listURL, kind)
	result := &Result{Metadata: meta, FetchedAt: now, Strategy: models.StrategyFeedScan}

	candidates := make([]candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		c := candidate{
			VideoID:  videoIDFromURL(item.Link),
			Title:    strings.TrimSpace(item.Title),
			VideoURL: strings.TrimSpace(item.Link),
		}
		if item.PublishedParsed != nil {
			c.UploadedAt = *item.PublishedParsed
		}
		if item.Author != nil {
			c.UploaderName = item.Author.Name
		}
		if c.UploaderName == "" && kind == models.ListKindUploaded {
			c.UploaderName = meta.OwnerName
		}
		candidates = append(candidates, c)
	}
	if len(candidates) > 0 {
		result.Videos, err = f.pipeline.normalize(ctx, listURL, now, candidates)
		if err != nil {
			return nil, wrapError(listURL, err)
		}
	}
	if result.Empty() {
		// Also reached when every item was deleted or scheduled.
		log.Warn("List fetch returned no videos", "list", listURL, "strategy", models.StrategyFeedScan, "items", len(candidates))
	}
	return result, nil
}

// feedMetadata derives owner and collection names from the feed channel.
// Channel titles look like "マイリスト 名前‐ニコニコ動画".
func feedMetadata(feed *gofeed.Feed, listURL string, kind models.ListKind) models.ListMetadata {
	meta := models.ListMetadata{ListURL: listURL, Kind: kind}

	if feed.DublinCoreExt != nil && len(feed.DublinCoreExt.Creator) > 0 {
		meta.OwnerName = strings.TrimSpace(feed.DublinCoreExt.Creator[0])
	}
	if meta.OwnerName == "" && len(feed.Authors) > 0 && feed.Authors[0] != nil {
		meta.OwnerName = strings.TrimSpace(feed.Authors[0].Name)
	}

	title := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(feed.Title), feedTitleSuffix))
	switch kind {
	case models.ListKindMylist:
		meta.CollectionName = strings.TrimSpace(strings.TrimPrefix(title, "マイリスト"))
	case models.ListKindSeries:
		meta.CollectionName = strings.TrimSpace(strings.TrimPrefix(title, "シリーズ"))
	case models.ListKindUploaded:
		if meta.OwnerName == "" {
			meta.OwnerName = strings.TrimSuffix(title, "さんの投稿動画")
		}
	}
	return meta
}
