package store

import (
	"database/sql"

	"github.com/vrsandeep/mylist-go/internal/models"
)

const videoColumns = `video_id, list_url, title, uploader_name, uploaded_at, registered_at, video_url, watch_status, created_at`

func scanVideo(row rowScanner) (*models.VideoRecord, error) {
	var v models.VideoRecord
	var status string
	err := row.Scan(&v.VideoID, &v.ListURL, &v.Title, &v.UploaderName, &v.UploadedAt, &v.RegisteredAt,
		&v.VideoURL, &status, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.WatchStatus = models.WatchStatus(status)
	return &v, nil
}

func collectVideos(rows *sql.Rows) ([]*models.VideoRecord, error) {
	defer rows.Close()
	var videos []*models.VideoRecord
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// CountVideos returns how many videos are stored for a list.
func (s *Store) CountVideos(listURL string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM mylist_videos WHERE list_url = ?", listURL).Scan(&count)
	return count, err
}

// GetVideos returns a list's videos, newest registration first.
func (s *Store) GetVideos(listURL string) ([]*models.VideoRecord, error) {
	rows, err := s.db.Query("SELECT "+videoColumns+` FROM mylist_videos
		WHERE list_url = ? ORDER BY registered_at DESC, video_id`, listURL)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// SetWatchStatus updates one video's status and the list's unread flag.
func (s *Store) SetWatchStatus(listURL, videoID string, status models.WatchStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE mylist_videos SET watch_status = ? WHERE list_url = ? AND video_id = ?",
		string(status), listURL, videoID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if err := refreshUnreadFlag(tx, listURL); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkAllWatched sets every video in a list to watched.
func (s *Store) MarkAllWatched(listURL string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE mylist_videos SET watch_status = ? WHERE list_url = ?",
		string(models.StatusWatched), listURL); err != nil {
		return err
	}
	res, err := tx.Exec("UPDATE mylists SET has_unread = 0 WHERE url = ?", listURL)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListNotFound
	}
	return tx.Commit()
}

func refreshUnreadFlag(tx *sql.Tx, listURL string) error {
	_, err := tx.Exec(`UPDATE mylists SET has_unread = EXISTS (
			SELECT 1 FROM mylist_videos WHERE list_url = ? AND watch_status = ?
		) WHERE url = ?`, listURL, string(models.StatusUnwatched), listURL)
	return err
}
