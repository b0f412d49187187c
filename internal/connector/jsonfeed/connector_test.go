package jsonfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const jsonFeedFixture = `{
  "version": "https://jsonfeed.org/version/1.1",
  "title": "Incident feed",
  "items": [
    {"id": "inc-1", "title": "Power outage in Graz", "content_text": "Large outage reported.",
     "url": "https://feed.example/inc-1", "date_published": "2026-01-17T08:00:00Z",
     "authors": [{"name": "ops"}]},
    {"title": "no id, skipped"}
  ]
}`

const customFixture = `{
  "data": {
    "events": [
      {"key": "e1", "headline": "Storm front", "coords": {"lat": 46.1, "lng": 14.2}}
    ]
  }
}`

func TestFetchJSONFeedDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(jsonFeedFixture))
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Source != "jsonfeed" || rec.SourceID != "inc-1" {
		t.Errorf("source/id = %q/%q", rec.Source, rec.SourceID)
	}
	if rec.Title != "Power outage in Graz" || rec.Author != "ops" {
		t.Errorf("title/author = %q/%q", rec.Title, rec.Author)
	}
	if rec.PublishedAt != "2026-01-17T08:00:00Z" {
		t.Errorf("published_at = %q", rec.PublishedAt)
	}
}

func TestFetchCustomPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(customFixture))
	}))
	defer srv.Close()

	c, err := New(Config{
		URL:       srv.URL,
		ItemsPath: "$.data.events[*]",
		FieldPaths: map[string]string{
			"source_id":    "$.key",
			"title":        "$.headline",
			"lat":          "$.coords.lat",
			"lon":          "$.coords.lng",
			"author":       "",
			"text":         "",
			"url":          "",
			"published_at": "",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.SourceID != "e1" || rec.Title != "Storm front" {
		t.Errorf("source_id/title = %q/%q", rec.SourceID, rec.Title)
	}
	if rec.Lat == nil || *rec.Lat != 46.1 || rec.Lon == nil || *rec.Lon != 14.2 {
		t.Errorf("coords = %v/%v", rec.Lat, rec.Lon)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without url")
	}
	if _, err := New(Config{URL: "https://x", ItemsPath: "not a path"}); err == nil {
		t.Error("expected error for bad items path")
	}
	if _, err := New(Config{URL: "https://x", FieldPaths: map[string]string{"bogus": "$.x"}}); err == nil {
		t.Error("expected error for unknown field")
	}
}
