// Package reconcile merges freshly fetched videos into a list's stored
// records while keeping the watch status the user assigned.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/store"
)

// ErrInconsistentInput is matched by every *MergeError.
var ErrInconsistentInput = errors.New("inconsistent reconciliation input")

// MergeError reports input that cannot be merged safely into one list.
type MergeError struct {
	ListURL string
	Reason  string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s: %s", e.ListURL, e.Reason)
}

func (e *MergeError) Unwrap() error {
	return ErrInconsistentInput
}

// Storage is what the engine needs from a storage handle. *store.Scope
// implements it; every call of one merge goes through the same handle.
type Storage interface {
	GetList(ctx context.Context, url string) (*models.TrackedList, error)
	SelectVideos(ctx context.Context, listURL string) ([]*models.VideoRecord, error)
	UpsertVideo(ctx context.Context, v *models.VideoRecord) (models.UpsertResult, error)
	UpdateListBookkeeping(ctx context.Context, b models.ListBookkeeping) error
	UpdateListNames(ctx context.Context, url, ownerName, collectionName, displayName string) error
	CountUnwatched(ctx context.Context, listURL string) (int, error)
}

// Outcome summarises one successful merge.
type Outcome struct {
	ListURL   string
	Inserted  int
	Updated   int
	FoundNew  bool
	HasUnread bool
	Renamed   bool
	CheckedAt time.Time
}

// Engine applies fetch outcomes to storage. It holds no state of its own.
type Engine struct{}

// NewEngine creates a reconciliation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Reconcile merges fetched into the stored records of listURL. Known videos
// keep their watch status, unseen ones are stored as unwatched and bump the
// list's content_updated_at. meta may be nil; when it carries names that
// differ from the stored ones the list is renamed.
func (e *Engine) Reconcile(ctx context.Context, st Storage, listURL string, fetched []models.NormalizedVideo, meta *models.ListMetadata, at time.Time) (*Outcome, error) {
	list, err := st.GetList(ctx, listURL)
	if errors.Is(err, store.ErrListNotFound) {
		return nil, &MergeError{ListURL: listURL, Reason: "list is not tracked"}
	}
	if err != nil {
		return nil, fmt.Errorf("loading list %s: %w", listURL, err)
	}

	if err := validateFetched(listURL, fetched); err != nil {
		return nil, err
	}

	previous, err := st.SelectVideos(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("loading videos of %s: %w", listURL, err)
	}
	known := make(map[string]models.WatchStatus, len(previous))
	for _, v := range previous {
		if v.ListURL != listURL {
			return nil, &MergeError{ListURL: listURL, Reason: fmt.Sprintf("stored video %s belongs to %s", v.VideoID, v.ListURL)}
		}
		known[v.VideoID] = v.WatchStatus
	}

	outcome := &Outcome{ListURL: listURL, CheckedAt: at}
	for _, v := range fetched {
		status, seen := known[v.VideoID]
		if !seen {
			status = models.StatusUnwatched
			outcome.FoundNew = true
		}
		res, err := st.UpsertVideo(ctx, &models.VideoRecord{
			VideoID:      v.VideoID,
			ListURL:      listURL,
			Title:        v.Title,
			UploaderName: v.UploaderName,
			UploadedAt:   v.UploadedAt,
			RegisteredAt: v.RegisteredAt,
			VideoURL:     v.VideoURL,
			WatchStatus:  status,
			CreatedAt:    at,
		})
		if err != nil {
			return nil, fmt.Errorf("storing video %s of %s: %w", v.VideoID, listURL, err)
		}
		if res == models.Inserted {
			outcome.Inserted++
		} else {
			outcome.Updated++
		}
	}

	if meta != nil {
		renamed, err := renameIfChanged(ctx, st, list, meta)
		if err != nil {
			return nil, err
		}
		outcome.Renamed = renamed
	}

	unwatched, err := st.CountUnwatched(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("counting unwatched videos of %s: %w", listURL, err)
	}
	outcome.HasUnread = unwatched > 0

	bookkeeping := models.ListBookkeeping{
		URL:           listURL,
		LastCheckedAt: at,
		HasUnread:     outcome.HasUnread,
	}
	if outcome.FoundNew {
		bookkeeping.ContentUpdatedAt = &at
	}
	if err := st.UpdateListBookkeeping(ctx, bookkeeping); err != nil {
		return nil, fmt.Errorf("updating bookkeeping of %s: %w", listURL, err)
	}
	return outcome, nil
}

// RecordFailure books a failed fetch or merge: last_checked_at advances, the
// failure counter grows and the stored videos stay as they are.
func (e *Engine) RecordFailure(ctx context.Context, st Storage, listURL string, at time.Time) error {
	list, err := st.GetList(ctx, listURL)
	if err != nil {
		return fmt.Errorf("loading list %s: %w", listURL, err)
	}
	unwatched, err := st.CountUnwatched(ctx, listURL)
	if err != nil {
		return fmt.Errorf("counting unwatched videos of %s: %w", listURL, err)
	}
	return st.UpdateListBookkeeping(ctx, models.ListBookkeeping{
		URL:                      listURL,
		LastCheckedAt:            at,
		ConsecutiveCheckFailures: list.ConsecutiveCheckFailures + 1,
		HasUnread:                unwatched > 0,
	})
}

func validateFetched(listURL string, fetched []models.NormalizedVideo) error {
	seen := make(map[string]bool, len(fetched))
	for i, v := range fetched {
		if v.VideoID == "" || v.Title == "" || v.VideoURL == "" {
			return &MergeError{ListURL: listURL, Reason: fmt.Sprintf("fetched video %d is missing id, title or url", i+1)}
		}
		if seen[v.VideoID] {
			return &MergeError{ListURL: listURL, Reason: fmt.Sprintf("video %s fetched twice", v.VideoID)}
		}
		seen[v.VideoID] = true
	}
	return nil
}

// renameIfChanged follows owner and collection renames on the site. Empty
// fetched names never overwrite stored ones.
func renameIfChanged(ctx context.Context, st Storage, list *models.TrackedList, meta *models.ListMetadata) (bool, error) {
	owner, collection := list.OwnerName, list.CollectionName
	if meta.OwnerName != "" {
		owner = meta.OwnerName
	}
	if meta.CollectionName != "" && list.Kind != models.ListKindUploaded {
		collection = meta.CollectionName
	}
	if owner == list.OwnerName && collection == list.CollectionName {
		return false, nil
	}

	display := models.DisplayName(list.Kind, owner, collection)
	if err := st.UpdateListNames(ctx, list.URL, owner, collection, display); err != nil {
		return false, fmt.Errorf("renaming %s: %w", list.URL, err)
	}
	return true, nil
}
