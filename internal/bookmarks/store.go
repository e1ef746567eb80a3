// Package bookmarks keeps named folder bookmarks and a visit log in a local
// SQLite database.
package bookmarks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a bookmark does not exist.
var ErrNotFound = errors.New("bookmark not found")

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	name       TEXT PRIMARY KEY,
	folder     TEXT NOT NULL,
	nsfw       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS visits (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	location   TEXT NOT NULL,
	folder     TEXT NOT NULL,
	title      TEXT NOT NULL,
	visited_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visits_visited_at ON visits(visited_at);
`

// Bookmark names a folder. An empty Folder is the index.
type Bookmark struct {
	Name    string
	Folder  string
	Nsfw    bool
	Created time.Time
}

// Visit is one entry of the visit log.
type Visit struct {
	Location string
	Folder   string
	Title    string
	At       time.Time
}

// Store is a handle on the database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add creates or replaces the bookmark b.Name.
func (s *Store) Add(ctx context.Context, b Bookmark) error {
	if b.Name == "" {
		return errors.New("bookmark name is empty")
	}
	if b.Created.IsZero() {
		b.Created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bookmarks (name, folder, nsfw, created_at) VALUES (?, ?, ?, ?)`,
		b.Name, b.Folder, b.Nsfw, b.Created.Unix())
	if err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	return nil
}

// Get returns the bookmark called name.
func (s *Store) Get(ctx context.Context, name string) (Bookmark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, folder, nsfw, created_at FROM bookmarks WHERE name = ?`, name)
	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Bookmark{}, ErrNotFound
	}
	return b, err
}

// List returns every bookmark ordered by name.
func (s *Store) List(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, folder, nsfw, created_at FROM bookmarks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Remove deletes the bookmark called name.
func (s *Store) Remove(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordVisit appends to the visit log.
func (s *Store) RecordVisit(ctx context.Context, v Visit) error {
	if v.At.IsZero() {
		v.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (location, folder, title, visited_at) VALUES (?, ?, ?, ?)`,
		v.Location, v.Folder, v.Title, v.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// LastVisit returns the most recent visit. ok is false when the log is empty.
func (s *Store) LastVisit(ctx context.Context) (v Visit, ok bool, err error) {
	visits, err := s.Visits(ctx, 1)
	if err != nil || len(visits) == 0 {
		return Visit{}, false, err
	}
	return visits[0], true, nil
}

// Visits returns up to limit visits, newest first.
func (s *Store) Visits(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location, folder, title, visited_at FROM visits ORDER BY visited_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var (
			v  Visit
			at int64
		)
		if err := rows.Scan(&v.Location, &v.Folder, &v.Title, &at); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.At = time.Unix(0, at)
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(sc scanner) (Bookmark, error) {
	var (
		b       Bookmark
		created int64
	)
	if err := sc.Scan(&b.Name, &b.Folder, &b.Nsfw, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, err
		}
		return Bookmark{}, fmt.Errorf("scan bookmark: %w", err)
	}
	b.Created = time.Unix(created, 0)
	return b, nil
}
