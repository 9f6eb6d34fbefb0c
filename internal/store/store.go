// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vrsandeep/mylist-go/internal/models"
)

var (
	ErrListNotFound  = errors.New("list not found")
	ErrDuplicateList = errors.New("list already tracked")
)

// DefaultCheckInterval is given to new lists when neither the caller nor the
// configuration names an interval.
const DefaultCheckInterval = "15分"

const listColumns = `id, url, owner_name, collection_name, list_kind, display_name, created_at,
	content_updated_at, last_checked_at, check_interval, consecutive_check_failures, has_unread`

// Store provides all functions to interact with the database.
type Store struct {
	db              *sql.DB
	defaultInterval string
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db, defaultInterval: DefaultCheckInterval}
}

// SetDefaultCheckInterval sets the interval CreateList stores for lists
// created without one. An empty value restores DefaultCheckInterval.
func (s *Store) SetDefaultCheckInterval(interval string) {
	if interval == "" {
		interval = DefaultCheckInterval
	}
	s.defaultInterval = interval
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanList(row rowScanner) (*models.TrackedList, error) {
	var l models.TrackedList
	var kind string
	var contentUpdatedAt, lastCheckedAt sql.NullTime
	err := row.Scan(&l.ID, &l.URL, &l.OwnerName, &l.CollectionName, &kind, &l.DisplayName, &l.CreatedAt,
		&contentUpdatedAt, &lastCheckedAt, &l.CheckInterval, &l.ConsecutiveCheckFailures, &l.HasUnread)
	if err != nil {
		return nil, err
	}
	l.Kind = models.ListKind(kind)
	if contentUpdatedAt.Valid {
		l.ContentUpdatedAt = &contentUpdatedAt.Time
	}
	if lastCheckedAt.Valid {
		l.LastCheckedAt = &lastCheckedAt.Time
	}
	return &l, nil
}

// CreateList starts tracking a list. Kind is derived from the URL when
// unset, the display name is always derived, and the new list is appended
// at the end of the display order.
func (s *Store) CreateList(list *models.TrackedList) (*models.TrackedList, error) {
	if list.Kind == "" {
		kind, err := models.ListKindFromURL(list.URL)
		if err != nil {
			return nil, err
		}
		list.Kind = kind
	}
	if !list.Kind.Valid() {
		return nil, fmt.Errorf("invalid list kind %q", list.Kind)
	}
	if list.CreatedAt.IsZero() {
		list.CreatedAt = time.Now()
	}
	if list.CheckInterval == "" {
		list.CheckInterval = s.defaultInterval
	}
	list.DisplayName = models.DisplayName(list.Kind, list.OwnerName, list.CollectionName)

	query := `
		INSERT INTO mylists (id, url, owner_name, collection_name, list_kind, display_name, created_at, check_interval)
		VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM mylists), ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, list.URL, list.OwnerName, list.CollectionName,
		string(list.Kind), list.DisplayName, list.CreatedAt.UTC(), list.CheckInterval)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateList, list.URL)
		}
		return nil, err
	}
	return s.GetListByURL(list.URL)
}

// DeleteList stops tracking a list. Its videos are removed by the foreign
// key cascade and the remaining ids are compacted to stay dense.
func (s *Store) DeleteList(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM mylists WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListNotFound
	}
	// Two passes through negative ids so no intermediate state collides.
	if _, err := tx.Exec("UPDATE mylists SET id = -id WHERE id > ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE mylists SET id = -id - 1 WHERE id < 0"); err != nil {
		return err
	}
	return tx.Commit()
}

// SwapListIDs exchanges the display positions of two lists.
func (s *Store) SwapListIDs(a, b int64) error {
	if a == b {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM mylists WHERE id IN (?, ?)", a, b).Scan(&count); err != nil {
		return err
	}
	if count != 2 {
		return ErrListNotFound
	}

	if _, err := tx.Exec("UPDATE mylists SET id = ? WHERE id = ?", -a, a); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE mylists SET id = ? WHERE id = ?", a, b); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE mylists SET id = ? WHERE id = ?", b, -a); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAllLists returns every tracked list in display order.
func (s *Store) GetAllLists() ([]*models.TrackedList, error) {
	rows, err := s.db.Query("SELECT " + listColumns + " FROM mylists ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*models.TrackedList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// GetListByID retrieves a single list by its display id.
func (s *Store) GetListByID(id int64) (*models.TrackedList, error) {
	l, err := scanList(s.db.QueryRow("SELECT "+listColumns+" FROM mylists WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrListNotFound
	}
	return l, err
}

// GetListByURL retrieves a single list by its URL.
func (s *Store) GetListByURL(url string) (*models.TrackedList, error) {
	l, err := scanList(s.db.QueryRow("SELECT "+listColumns+" FROM mylists WHERE url = ?", url))
	if err == sql.ErrNoRows {
		return nil, ErrListNotFound
	}
	return l, err
}

// UpdateCheckInterval changes how often a list is due for refresh.
func (s *Store) UpdateCheckInterval(url, interval string) error {
	res, err := s.db.Exec("UPDATE mylists SET check_interval = ? WHERE url = ?", interval, url)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListNotFound
	}
	return nil
}

// utc normalises stored timestamps so that text ordering in SQLite matches
// chronological ordering.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
