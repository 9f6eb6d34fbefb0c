package models

import "time"

// WatchStatus is the user-assigned state of a video within a list.
type WatchStatus string

const (
	StatusUnwatched WatchStatus = "unwatched"
	StatusWatched   WatchStatus = "watched"
)

// VideoRecord is one (video, tracked list) row. The same video may appear
// under several lists as distinct rows.
type VideoRecord struct {
	VideoID      string      `json:"video_id"`
	ListURL      string      `json:"list_url"`
	Title        string      `json:"title"`
	UploaderName string      `json:"uploader_name"`
	UploadedAt   time.Time   `json:"uploaded_at"`
	RegisteredAt time.Time   `json:"registered_at"` // when it was added to this list
	VideoURL     string      `json:"video_url"`
	WatchStatus  WatchStatus `json:"watch_status"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NormalizedVideo is a fetched, validated video. It carries no watch status;
// that is assigned during reconciliation.
type NormalizedVideo struct {
	Position     int // 1-based, newest first
	VideoID      string
	Title        string
	UploaderName string
	UploadedAt   time.Time
	RegisteredAt time.Time
	VideoURL     string
}

// UpsertResult reports what an upsert did to the stored row.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)
