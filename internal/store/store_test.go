package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var testBase = time.Date(2026, 1, 17, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(source, sourceID string, collected time.Time) *Item {
	return &Item{
		Source:      source,
		SourceID:    sourceID,
		CollectedAt: collected,
		Title:       "M4.2 - somewhere",
		PublishedAt: collected,
		CreatedAt:   collected,
	}
}

// itemID looks the row id up directly; Upsert doesn't return it.
func itemID(t *testing.T, s *Store, source, sourceID string) int64 {
	t.Helper()
	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM normalized_items WHERE source = ? AND source_id = ?",
		source, sourceID).Scan(&id)
	if err != nil {
		t.Fatalf("look up item id: %v", err)
	}
	return id
}

func TestPragmas(t *testing.T) {
	s := newTestStore(t)

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected journal_mode=wal, got %q", journalMode)
	}

	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign_keys=1, got %d", fk)
	}
}

func TestSchema(t *testing.T) {
	s := newTestStore(t)

	tables := map[string]bool{}
	rows, err := s.db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		t.Fatalf("query tables: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		tables[name] = true
	}

	for _, want := range []string{"normalized_items", "clusters", "schema_migrations"} {
		if !tables[want] {
			t.Errorf("expected table %q, got tables: %v", want, tables)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}

	ctx := context.Background()
	if _, err := s1.UpsertItem(ctx, testItem("usgs", "keep", testBase)); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	s1.Close()

	// Reopening runs migrations again; existing data must survive.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	st, err := s2.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Items != 1 {
		t.Errorf("items after reopen = %d, want 1", st.Items)
	}
}
