package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mylist-go/internal/lookup"
	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/retry"
)

const (
	testMylistURL   = "https://www.nicovideo.jp/user/100/mylist/200"
	testUploadedURL = "https://www.nicovideo.jp/user/100/video"
)

type tile struct {
	id, title, uploaded, added string
}

// scriptedPage builds a list page whose tiles are injected by an inline
// script, the way the site renders them.
func scriptedPage(owner, name string, tiles ...tile) string {
	var items []string
	for _, t := range tiles {
		items = append(items, fmt.Sprintf(`{id: %q, title: %q, up: %q, added: %q}`, t.id, t.title, t.uploaded, t.added))
	}
	return fmt.Sprintf(`<html><head><title>list</title></head><body>
<header>
  <h1 class="MylistHeader-name">%s</h1>
  <a class="MylistHeader-ownerName" href="/user/100">%s</a>
</header>
<div id="items"></div>
<script>
  var items = [%s];
  var container = document.getElementById("items");
  items.forEach(function (v) {
    var html = '<div class="NC-MediaObject">' +
      '<a class="NC-MediaObject-contents" href="/watch/' + v.id + '?ref=list">' +
      '<h2 class="NC-MediaObjectTitle">' + v.title + '</h2>' +
      '<span class="NC-VideoRegisteredAtText">' + v.up + '</span></a>';
    if (v.added) {
      html += '<span class="MylistItemAddition-addedAt">' + v.added + ' 登録</span>';
    }
    container.insertAdjacentHTML("beforeend", html + '</div>');
  });
</script>
</body></html>`, name, owner, strings.Join(items, ",\n"))
}

func jstTime(day, hour, minute, second int) time.Time {
	return time.Date(2024, 5, day, hour, minute, second, 0, jst)
}

func newTestFullScan(site *fakeSite, lk *fakeLookup) *FullScan {
	return NewFullScan(site, NewRenderer(5*time.Second), lk, testOptions())
}

func TestFullScan_Mylist(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "お気に入り",
		tile{"sm3", "third", "2024/05/31 10:00", "2024/06/01 09:00"},
		tile{"sm2", "second", "2024/05/30 10:00", "2024/05/31 09:00"},
		tile{"sm3", "third", "2024/05/31 10:00", "2024/06/01 09:00"},
		tile{"sm9", "scheduled", "2024/06/02 10:00", "2024/06/01 09:30"},
		tile{"sm1", "first", "2024/05/29 10:00", "2024/05/30 09:00"},
	)
	lk := newFakeLookup(
		info("sm3", "third", jstTime(31, 10, 0, 30)),
		info("sm2", "second", jstTime(30, 10, 0, 0)),
		info("sm1", "first", jstTime(29, 10, 0, 59)),
	)

	result, err := newTestFullScan(site, lk).Fetch(context.Background(), testMylistURL)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyFullScan, result.Strategy)
	assert.True(t, result.FetchedAt.Equal(testNow))
	assert.Equal(t, models.ListKindMylist, result.Metadata.Kind)
	assert.Equal(t, "alice", result.Metadata.OwnerName)
	assert.Equal(t, "お気に入り", result.Metadata.CollectionName)
	assert.Equal(t, "「お気に入り」-aliceさんのマイリスト", result.Metadata.DisplayName())

	require.Len(t, result.Videos, 3)
	var ids []string
	for i, v := range result.Videos {
		ids = append(ids, v.VideoID)
		assert.Equal(t, i+1, v.Position)
	}
	assert.Equal(t, []string{"sm3", "sm2", "sm1"}, ids)

	first := result.Videos[0]
	assert.Equal(t, "https://www.nicovideo.jp/watch/sm3", first.VideoURL)
	assert.True(t, first.UploadedAt.Equal(jstTime(31, 10, 0, 30)), "lookup upload time is kept")
	assert.True(t, first.RegisteredAt.Equal(time.Date(2024, 6, 1, 9, 0, 0, 0, jst)))
	assert.Equal(t, "uploader-sm3", first.UploaderName)

	assert.Zero(t, lk.calls["sm9"], "scheduled video is excluded before the lookup")
	assert.Equal(t, 1, lk.calls["sm3"], "duplicates are looked up once")
}

func TestFullScan_UploadedListUsesUploadTimeAsRegistration(t *testing.T) {
	site := newFakeSite()
	site.bodies[testUploadedURL] = `<html><body>
<span class="UserDetailsHeader-nickname">bob</span>
<div class="NC-MediaObject">
  <a class="NC-MediaObject-contents" href="https://www.nicovideo.jp/watch/sm5">
    <h2 class="NC-MediaObjectTitle">fresh</h2>
    <span class="NC-VideoRegisteredAtText">5分前</span>
  </a>
</div>
<div class="NC-MediaObject">
  <a class="NC-MediaObject-contents" href="https://www.nicovideo.jp/watch/sm4">
    <h2 class="NC-MediaObjectTitle">older</h2>
    <span class="NC-VideoRegisteredAtText">2024/05/31 10:00</span>
  </a>
</div>
</body></html>`
	// the relative tile is not compared at minute precision
	lk := newFakeLookup(
		info("sm5", "fresh", testNow.Add(-7*time.Minute)),
		info("sm4", "older", jstTime(31, 10, 0, 0)),
	)

	result, err := newTestFullScan(site, lk).Fetch(context.Background(), testUploadedURL)
	require.NoError(t, err)

	assert.Equal(t, "bob", result.Metadata.OwnerName)
	assert.Empty(t, result.Metadata.CollectionName)
	require.Len(t, result.Videos, 2)
	for _, v := range result.Videos {
		assert.True(t, v.RegisteredAt.Equal(v.UploadedAt), "%s registered_at equals uploaded_at", v.VideoID)
	}
	assert.True(t, result.Videos[0].UploadedAt.Equal(testNow.Add(-7*time.Minute)))
}

func TestFullScan_ValidationGate(t *testing.T) {
	tests := []struct {
		name   string
		lookup *fakeLookup
	}{
		{"title differs", newFakeLookup(
			info("sm2", "second (edited)", jstTime(30, 10, 0, 0)),
			info("sm1", "first", jstTime(29, 10, 0, 0)),
		)},
		{"upload minute differs", newFakeLookup(
			info("sm2", "second", jstTime(30, 10, 1, 0)),
			info("sm1", "first", jstTime(29, 10, 0, 0)),
		)},
		{"url differs", func() *fakeLookup {
			l := newFakeLookup(
				info("sm2", "second", jstTime(30, 10, 0, 0)),
				info("sm1", "first", jstTime(29, 10, 0, 0)),
			)
			l.videos["sm1"].VideoURL = "https://www.nicovideo.jp/watch/so1"
			return l
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := newFakeSite()
			site.bodies[testMylistURL] = scriptedPage("alice", "list",
				tile{"sm2", "second", "2024/05/30 10:00", "2024/05/31 09:00"},
				tile{"sm1", "first", "2024/05/29 10:00", "2024/05/30 09:00"},
			)
			result, err := newTestFullScan(site, tt.lookup).Fetch(context.Background(), testMylistURL)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrValidationMismatch)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, testMylistURL, fe.ListURL)
			assert.Equal(t, ErrValidationMismatch, fe.Kind)
		})
	}
}

func TestFullScan_RetriesTransientFailures(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "list",
		tile{"sm1", "first", "2024/05/29 10:00", "2024/05/30 09:00"},
	)
	site.failures[testMylistURL] = 2
	lk := newFakeLookup(info("sm1", "first", jstTime(29, 10, 0, 0)))

	result, err := newTestFullScan(site, lk).Fetch(context.Background(), testMylistURL)
	require.NoError(t, err)
	assert.Len(t, result.Videos, 1)
	assert.Equal(t, 3, site.callCount(testMylistURL))
}

func TestFullScan_Exhausted(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "list")
	site.failures[testMylistURL] = 100

	_, err := newTestFullScan(site, newFakeLookup()).Fetch(context.Background(), testMylistURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 5, site.callCount(testMylistURL))
}

func TestFullScan_NotFoundIsNotRetried(t *testing.T) {
	site := newFakeSite()
	site.status[testMylistURL] = 404

	_, err := newTestFullScan(site, newFakeLookup()).Fetch(context.Background(), testMylistURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, site.callCount(testMylistURL))
}

func TestFullScan_ForbiddenIsRejected(t *testing.T) {
	site := newFakeSite()
	site.status[testMylistURL] = 403

	_, err := newTestFullScan(site, newFakeLookup()).Fetch(context.Background(), testMylistURL)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, site.callCount(testMylistURL))
}

func TestFullScan_BadTimestampFailsWholeList(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "list",
		tile{"sm2", "second", "2024/05/30 10:00", "2024/05/31 09:00"},
		tile{"sm1", "first", "someday", "2024/05/30 09:00"},
	)
	lk := newFakeLookup(
		info("sm2", "second", jstTime(30, 10, 0, 0)),
		info("sm1", "first", jstTime(29, 10, 0, 0)),
	)

	_, err := newTestFullScan(site, lk).Fetch(context.Background(), testMylistURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, lk.calls, "no lookups happen for a page that failed to parse")
}

func TestFullScan_EmptyPageIsNotAnError(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "empty list")

	result, err := newTestFullScan(site, newFakeLookup()).Fetch(context.Background(), testMylistURL)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, "empty list", result.Metadata.CollectionName)
}

func TestFullScan_FutureLookupTimeIsExcluded(t *testing.T) {
	site := newFakeSite()
	site.bodies[testUploadedURL] = `<html><body>
<div class="NC-MediaObject">
  <a class="NC-MediaObject-contents" href="/watch/sm7"><h2 class="NC-MediaObjectTitle">premiere</h2>
  <span class="NC-VideoRegisteredAtText">たった今</span></a>
</div>
<div class="NC-MediaObject">
  <a class="NC-MediaObject-contents" href="/watch/sm6"><h2 class="NC-MediaObjectTitle">published</h2>
  <span class="NC-VideoRegisteredAtText">1時間前</span></a>
</div>
</body></html>`
	lk := newFakeLookup(
		info("sm7", "premiere", testNow.Add(time.Hour)),
		info("sm6", "published", testNow.Add(-time.Hour)),
	)

	result, err := newTestFullScan(site, lk).Fetch(context.Background(), testUploadedURL)
	require.NoError(t, err)
	require.Len(t, result.Videos, 1)
	assert.Equal(t, "sm6", result.Videos[0].VideoID)
	assert.Equal(t, 1, result.Videos[0].Position)
}

func TestFullScan_DeletedVideoIsLeftOut(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "list",
		tile{"sm2", "second", "2024/05/30 10:00", "2024/05/31 09:00"},
		tile{"sm1", "first", "2024/05/29 10:00", "2024/05/30 09:00"},
	)
	lk := newFakeLookup(info("sm1", "first", jstTime(29, 10, 0, 0)))

	result, err := newTestFullScan(site, lk).Fetch(context.Background(), testMylistURL)
	require.NoError(t, err)
	require.Len(t, result.Videos, 1)
	assert.Equal(t, "sm1", result.Videos[0].VideoID)
	assert.Equal(t, 1, result.Videos[0].Position)
}

func TestFullScan_EveryVideoDeletedLogsEmptyList(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Default()
	log.SetDefault(log.New(&buf))
	t.Cleanup(func() { log.SetDefault(previous) })

	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "list",
		tile{"sm1", "first", "2024/05/29 10:00", "2024/05/30 09:00"},
	)

	result, err := newTestFullScan(site, newFakeLookup()).Fetch(context.Background(), testMylistURL)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Contains(t, buf.String(), "List fetch returned no videos")
}

func TestFullScan_MalformedLookupResponse(t *testing.T) {
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "list",
		tile{"sm1", "first", "2024/05/29 10:00", "2024/05/30 09:00"},
	)
	lk := newFakeLookup()
	lk.errs["sm1"] = retry.Permanent(fmt.Errorf("lookup sm1: %w: unexpected EOF", lookup.ErrMalformed))

	_, err := newTestFullScan(site, lk).Fetch(context.Background(), testMylistURL)
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrMalformed, fe.Kind)
	assert.ErrorIs(t, err, lookup.ErrMalformed)
	assert.Equal(t, 1, lk.calls["sm1"])
}

func TestFullScan_CapsAtPageLimit(t *testing.T) {
	var tiles []tile
	lk := newFakeLookup()
	for i := 0; i < FullScanLimit+10; i++ {
		id := fmt.Sprintf("sm%d", 1000-i)
		tiles = append(tiles, tile{id, "video " + id, "2024/05/01 10:00", "2024/05/02 10:00"})
		lk.videos[id] = info(id, "video "+id, time.Date(2024, 5, 1, 10, 0, 0, 0, jst))
	}
	site := newFakeSite()
	site.bodies[testMylistURL] = scriptedPage("alice", "big", tiles...)

	result, err := newTestFullScan(site, lk).Fetch(context.Background(), testMylistURL)
	require.NoError(t, err)
	assert.Len(t, result.Videos, FullScanLimit)
	assert.Equal(t, "sm1000", result.Videos[0].VideoID)
}
