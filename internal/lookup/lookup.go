// Package lookup reads authoritative per-video metadata from the site's
// thumbnail info endpoint. Fetchers use it to cross-check what they scraped.
package lookup

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vrsandeep/mylist-go/internal/retry"
	"github.com/vrsandeep/mylist-go/internal/webclient"
)

var (
	// ErrNotFound means the video is deleted, private or never existed.
	ErrNotFound = errors.New("video not found")
	// ErrMalformed means the lookup answer could not be decoded.
	ErrMalformed = errors.New("malformed lookup response")
)

// VideoInfo is the lookup service's view of a single video.
type VideoInfo struct {
	VideoID      string
	Title        string
	UploadedAt   time.Time
	VideoURL     string
	UploaderName string
}

// Service looks up a single video by id.
type Service interface {
	Lookup(ctx context.Context, videoID string) (*VideoInfo, error)
}

// Getter is the subset of webclient.Client the lookup client needs.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type thumbResponse struct {
	XMLName xml.Name `xml:"nicovideo_thumb_response"`
	Status  string   `xml:"status,attr"`
	Thumb   struct {
		VideoID       string `xml:"video_id"`
		Title         string `xml:"title"`
		FirstRetrieve string `xml:"first_retrieve"`
		WatchURL      string `xml:"watch_url"`
		UserNickname  string `xml:"user_nickname"`
		ChannelName   string `xml:"ch_name"`
	} `xml:"thumb"`
	Error struct {
		Code        string `xml:"code"`
		Description string `xml:"description"`
	} `xml:"error"`
}

// ThumbInfoClient implements Service over the getthumbinfo XML API.
type ThumbInfoClient struct {
	getter  Getter
	baseURL string
}

// NewThumbInfoClient creates a client rooted at baseURL, e.g. "https://ext.nicovideo.jp".
func NewThumbInfoClient(getter Getter, baseURL string) *ThumbInfoClient {
	return &ThumbInfoClient{getter: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *ThumbInfoClient) Lookup(ctx context.Context, videoID string) (*VideoInfo, error) {
	body, err := c.getter.Get(ctx, fmt.Sprintf("%s/api/getthumbinfo/%s", c.baseURL, videoID))
	if errors.Is(err, webclient.ErrNotFound) {
		return nil, retry.Permanent(fmt.Errorf("lookup %s: %w: %w", videoID, ErrNotFound, err))
	}
	if err != nil {
		return nil, err
	}
	return ParseThumbInfo(videoID, body)
}

// ParseThumbInfo decodes a getthumbinfo response body. Parse failures and
// "not found" answers are marked permanent for the retry package.
func ParseThumbInfo(videoID string, body []byte) (*VideoInfo, error) {
	var resp thumbResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, retry.Permanent(fmt.Errorf("lookup %s: %w: %w", videoID, ErrMalformed, err))
	}

	if resp.Status != "ok" {
		switch resp.Error.Code {
		case "DELETED", "NOT_FOUND", "COMMUNITY":
			return nil, retry.Permanent(fmt.Errorf("lookup %s: %s: %w", videoID, resp.Error.Code, ErrNotFound))
		}
		return nil, fmt.Errorf("lookup %s: status %q code %q: %s", videoID, resp.Status, resp.Error.Code, resp.Error.Description)
	}

	uploadedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(resp.Thumb.FirstRetrieve))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("lookup %s: %w: bad first_retrieve %q: %w", videoID, ErrMalformed, resp.Thumb.FirstRetrieve, err))
	}

	uploader := resp.Thumb.UserNickname
	if uploader == "" {
		uploader = resp.Thumb.ChannelName
	}

	return &VideoInfo{
		VideoID:      resp.Thumb.VideoID,
		Title:        resp.Thumb.Title,
		UploadedAt:   uploadedAt,
		VideoURL:     resp.Thumb.WatchURL,
		UploaderName: uploader,
	}, nil
}
