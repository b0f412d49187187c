// Package store persists normalized items and clusters in SQLite.
// There is exactly one writer per table: the pipeline writes items, the
// clustering engine writes clusters and assignments.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339

// Item is one normalized item row.
type Item struct {
	ID           int64
	Source       string
	SourceID     string
	CollectedAt  time.Time
	Title        string
	Text         string
	URL          string
	Author       string
	MediaURLs    []string
	PublishedAt  time.Time
	Entities     map[string]any
	LocationName string
	Lat          *float64
	Lon          *float64
	ClusterID    *uuid.UUID
	CreatedAt    time.Time
}

// Cluster is one cluster row.
type Cluster struct {
	ID              uuid.UUID
	Title           string
	Summary         string
	RepLocationName string
	RepLat          *float64
	RepLon          *float64
	FirstSeenAt     *time.Time
	LastSeenAt      *time.Time
	ItemCount       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Stats are the aggregate counts exposed by GET /stats.
type Stats struct {
	Items          int64
	ClusteredItems int64
	Clusters       int64
}

// Store wraps the SQLite database holding items and clusters.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas. busy_timeout matters when the pipeline, engine, and API
	// run as separate processes against the same file.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// formatTime renders a timestamp in the canonical column format. All stored
// timestamps are UTC RFC3339 so lexicographic and chronological order agree.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// formatNullTime renders a nullable timestamp, mapping nil to SQL NULL.
func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// formatZeroTime renders a timestamp, mapping the zero time to SQL NULL.
// published_at uses this so COALESCE(published_at, collected_at) falls
// through for items whose feed carried no publication date.
func formatZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// scanNullTime converts a nullable timestamp column into *time.Time.
func scanNullTime(ns sql.NullString, dst **time.Time) error {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return err
	}
	*dst = &t
	return nil
}

// scanNullUUID converts a sql.NullString to a *uuid.UUID.
// If the column is NULL, dst is left as nil. Otherwise the string is parsed as a UUID.
func scanNullUUID(ns sql.NullString, dst **uuid.UUID) error {
	if !ns.Valid {
		return nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return fmt.Errorf("parse uuid %q: %w", ns.String, err)
	}
	*dst = &id
	return nil
}

// scanNullFloat converts a sql.NullFloat64 to a *float64.
func scanNullFloat(nf sql.NullFloat64, dst **float64) {
	if !nf.Valid {
		return
	}
	v := nf.Float64
	*dst = &v
}

// nullFloat maps a *float64 to a SQL value, nil becoming NULL.
func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// nullString maps "" to SQL NULL so empty text fields don't masquerade as values.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
