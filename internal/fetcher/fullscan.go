package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/retry"
)

// FullScan reads the rendered list page. It sees up to FullScanLimit items
// including registration times, at the cost of a page render per list.
type FullScan struct {
	getter   Getter
	renderer *Renderer
	opts     Options
	pipeline pipeline
}

// NewFullScan creates the page-rendering strategy.
func NewFullScan(getter Getter, renderer *Renderer, svc lookup.Service, opts Options) *FullScan {
	return &FullScan{
		getter:   getter,
		renderer: renderer,
		opts:     opts,
		pipeline: opts.pipeline(svc, FullScanLimit, true),
	}
}

func (f *FullScan) Strategy() models.Strategy {
	return models.StrategyFullScan
}

func (f *FullScan) Fetch(ctx context.Context, listURL string) (*Result, error) {
	now := f.opts.now()
	kind, err := models.ListKindFromURL(listURL)
	if err != nil {
		return nil, wrapError(listURL, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	base, err := url.Parse(listURL)
	if err != nil {
		return nil, wrapError(listURL, fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	var doc *goquery.Document
	err = retry.Do(ctx, f.opts.Policy, retryable, func(ctx context.Context) error {
		page, err := f.getter.Get(ctx, listURL)
		if err != nil {
			return permanentHTTP(err)
		}
		rendered, err := f.renderer.Render(ctx, page)
		if errors.Is(err, ErrMalformed) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		doc = rendered
		return nil
	})
	if err != nil {
		return nil, wrapError(listURL, err)
	}

	meta := parsePageMetadata(doc, listURL, kind)
	candidates, err := parseTiles(doc, base, kind, meta.OwnerName, now)
	if err != nil {
		return nil, wrapError(listURL, err)
	}

	result := &Result{Metadata: meta, FetchedAt: now, Strategy: models.StrategyFullScan}
	if len(candidates) > 0 {
		result.Videos, err = f.pipeline.normalize(ctx, listURL, now, candidates)
		if err != nil {
			return nil, wrapError(listURL, err)
		}
	}
	if result.Empty() {
		// Also reached when every item was deleted or scheduled.
		log.Warn("List fetch returned no videos", "list", listURL, "strategy", models.StrategyFullScan, "items", len(candidates))
	}
	return result, nil
}

func parsePageMetadata(doc *goquery.Document, listURL string, kind models.ListKind) models.ListMetadata {
	firstText := func(selectors ...string) string {
		for _, sel := range selectors {
			if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
				return text
			}
		}
		return ""
	}
	meta := models.ListMetadata{
		ListURL:   listURL,
		Kind:      kind,
		OwnerName: firstText(".MylistHeader-ownerName", ".UserDetailsHeader-nickname"),
	}
	if kind != models.ListKindUploaded {
		meta.CollectionName = firstText(".MylistHeader-name")
	}
	return meta
}

// parseTiles extracts every video tile in page order. Any tile that cannot
// be read fails the whole page.
func parseTiles(doc *goquery.Document, base *url.URL, kind models.ListKind, owner string, now time.Time) ([]candidate, error) {
	var (
		candidates []candidate
		tileErr    error
	)
	doc.Find(".NC-MediaObject").EachWithBreak(func(i int, tile *goquery.Selection) bool {
		c, err := parseTile(tile, base, kind, now)
		if err != nil {
			tileErr = fmt.Errorf("tile %d: %w", i+1, err)
			return false
		}
		if c.UploaderName == "" && kind == models.ListKindUploaded {
			c.UploaderName = owner
		}
		candidates = append(candidates, c)
		return true
	})
	return candidates, tileErr
}

func parseTile(tile *goquery.Selection, base *url.URL, kind models.ListKind, now time.Time) (candidate, error) {
	href, ok := tile.Find("a.NC-MediaObject-contents").First().Attr("href")
	if !ok {
		return candidate{}, fmt.Errorf("%w: missing video link", ErrMalformed)
	}
	link, err := base.Parse(href)
	if err != nil {
		return candidate{}, fmt.Errorf("%w: bad video link %q", ErrMalformed, href)
	}
	videoURL := link.String()

	c := candidate{
		VideoID:      videoIDFromURL(videoURL),
		Title:        strings.TrimSpace(tile.Find(".NC-MediaObjectTitle").First().Text()),
		VideoURL:     videoURL,
		UploaderName: strings.TrimSpace(tile.Find(".NC-VideoMediaObject-ownerName").First().Text()),
	}

	uploaded, relative, err := ParseTimestamp(tile.Find(".NC-VideoRegisteredAtText").First().Text(), now)
	if err != nil {
		return candidate{}, fmt.Errorf("upload time: %w", err)
	}
	c.UploadedAt = uploaded
	c.UploadedAtExact = !relative

	if kind == models.ListKindMylist {
		text := tile.Find(".MylistItemAddition-addedAt").First().Text()
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "登録"))
		text = strings.TrimSpace(strings.TrimSuffix(text, "マイリスト"))
		registered, _, err := ParseTimestamp(text, now)
		if err != nil {
			return candidate{}, fmt.Errorf("registration time: %w", err)
		}
		c.RegisteredAt = registered
	}
	return c, nil
}
