package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vrsandeep/mylist-go/internal/models"
)

// Scope is a storage handle owned by a single task: one dedicated pool
// connection holding one transaction. It must not be shared between
// goroutines and must be closed by the task that opened it.
type Scope struct {
	conn *sql.Conn
	tx   *sql.Tx
	done bool
}

// OpenScope acquires a dedicated connection and begins a transaction on it.
func (s *Store) OpenScope(ctx context.Context) (*Scope, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Scope{conn: conn, tx: tx}, nil
}

// Commit makes the scope's writes durable. The scope still has to be closed.
func (sc *Scope) Commit() error {
	if sc.done {
		return sql.ErrTxDone
	}
	sc.done = true
	return sc.tx.Commit()
}

// Close rolls back anything uncommitted and returns the connection to the pool.
func (sc *Scope) Close() error {
	if !sc.done {
		sc.done = true
		sc.tx.Rollback()
	}
	return sc.conn.Close()
}

// GetList reads a list inside the scope's transaction.
func (sc *Scope) GetList(ctx context.Context, url string) (*models.TrackedList, error) {
	l, err := scanList(sc.tx.QueryRowContext(ctx, "SELECT "+listColumns+" FROM mylists WHERE url = ?", url))
	if err == sql.ErrNoRows {
		return nil, ErrListNotFound
	}
	return l, err
}

// SelectVideos returns every stored video for a list.
func (sc *Scope) SelectVideos(ctx context.Context, listURL string) ([]*models.VideoRecord, error) {
	rows, err := sc.tx.QueryContext(ctx, "SELECT "+videoColumns+" FROM mylist_videos WHERE list_url = ?", listURL)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// UpsertVideo inserts a video row or overwrites an existing one. On update
// the stored watch_status and created_at are left untouched.
func (sc *Scope) UpsertVideo(ctx context.Context, v *models.VideoRecord) (models.UpsertResult, error) {
	var exists int
	err := sc.tx.QueryRowContext(ctx, "SELECT 1 FROM mylist_videos WHERE video_id = ? AND list_url = ?",
		v.VideoID, v.ListURL).Scan(&exists)
	if err == sql.ErrNoRows {
		_, err := sc.tx.ExecContext(ctx, "INSERT INTO mylist_videos ("+videoColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.VideoID, v.ListURL, v.Title, v.UploaderName, v.UploadedAt.UTC(), v.RegisteredAt.UTC(), v.VideoURL,
			string(v.WatchStatus), v.CreatedAt.UTC())
		if err != nil {
			return 0, err
		}
		return models.Inserted, nil
	} else if err != nil {
		return 0, err
	}

	_, err = sc.tx.ExecContext(ctx, `UPDATE mylist_videos
		SET title = ?, uploader_name = ?, uploaded_at = ?, registered_at = ?, video_url = ?
		WHERE video_id = ? AND list_url = ?`,
		v.Title, v.UploaderName, v.UploadedAt.UTC(), v.RegisteredAt.UTC(), v.VideoURL, v.VideoID, v.ListURL)
	if err != nil {
		return 0, err
	}
	return models.Updated, nil
}

// CountUnwatched returns how many of a list's videos are unwatched.
func (sc *Scope) CountUnwatched(ctx context.Context, listURL string) (int, error) {
	var count int
	err := sc.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM mylist_videos WHERE list_url = ? AND watch_status = ?",
		listURL, string(models.StatusUnwatched)).Scan(&count)
	return count, err
}

// UpdateListBookkeeping writes the freshness fields of a list.
// content_updated_at is only written when b.ContentUpdatedAt is set.
func (sc *Scope) UpdateListBookkeeping(ctx context.Context, b models.ListBookkeeping) error {
	res, err := sc.tx.ExecContext(ctx, `UPDATE mylists
		SET last_checked_at = ?, content_updated_at = COALESCE(?, content_updated_at),
			consecutive_check_failures = ?, has_unread = ?
		WHERE url = ?`,
		b.LastCheckedAt.UTC(), utc(b.ContentUpdatedAt), b.ConsecutiveCheckFailures, b.HasUnread, b.URL)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListNotFound
	}
	return nil
}

// UpdateListNames rewrites a list's descriptive names.
func (sc *Scope) UpdateListNames(ctx context.Context, url, ownerName, collectionName, displayName string) error {
	_, err := sc.tx.ExecContext(ctx, `UPDATE mylists SET owner_name = ?, collection_name = ?, display_name = ?
		WHERE url = ?`, ownerName, collectionName, displayName, url)
	return err
}
