package db_test

import (
	"path/filepath"
	"testing"

	"github.com/vrsandeep/mylist-go/internal/assets"
	"github.com/vrsandeep/mylist-go/internal/db"
	"github.com/vrsandeep/mylist-go/internal/testutil"
)

func TestForeignKeyCascadeDelete(t *testing.T) {
	// Setup test database with migrations already applied
	db := testutil.SetupTestDB(t)

	// Test 1: Verify foreign keys are enabled
	var foreignKeysEnabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysEnabled)
	if err != nil {
		t.Fatalf("Failed to check foreign keys status: %v", err)
	}
	if foreignKeysEnabled != 1 {
		t.Errorf("Foreign keys should be enabled, got: %d", foreignKeysEnabled)
	}

	// Test 2: Create a list with one video
	_, err = db.Exec(`INSERT INTO mylists (url, owner_name, list_kind, display_name, created_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		"https://www.nicovideo.jp/user/1/video", "owner", "uploaded", "ownerさんの投稿動画")
	if err != nil {
		t.Fatalf("Failed to create test list: %v", err)
	}
	_, err = db.Exec(`INSERT INTO mylist_videos (video_id, list_url, title, uploaded_at, registered_at, video_url, created_at)
		VALUES (?, ?, ?, datetime('now'), datetime('now'), ?, datetime('now'))`,
		"sm1", "https://www.nicovideo.jp/user/1/video", "title", "https://www.nicovideo.jp/watch/sm1")
	if err != nil {
		t.Fatalf("Failed to create test video: %v", err)
	}

	// Test 3: A second row for the same (video, list) pair is rejected
	_, err = db.Exec(`INSERT INTO mylist_videos (video_id, list_url, title, uploaded_at, registered_at, video_url, created_at)
		VALUES (?, ?, ?, datetime('now'), datetime('now'), ?, datetime('now'))`,
		"sm1", "https://www.nicovideo.jp/user/1/video", "title", "https://www.nicovideo.jp/watch/sm1")
	if err == nil {
		t.Error("Expected duplicate (video_id, list_url) insert to fail")
	}

	// Test 4: Delete the list and verify its videos go with it
	_, err = db.Exec("DELETE FROM mylists WHERE url = ?", "https://www.nicovideo.jp/user/1/video")
	if err != nil {
		t.Fatalf("Failed to delete list: %v", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM mylist_videos").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count videos: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 videos after list deletion, got %d", count)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	database, err := db.InitDB(filepath.Join(t.TempDir(), "twice.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("first RunMigrations failed: %v", err)
	}
	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
}
