package gdelt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const artListFixture = `{
  "articles": [
    {
      "url": "https://example.com/quake-tokyo",
      "title": "Magnitude 6.2 earthquake shakes Tokyo",
      "seendate": "20260117T090000Z",
      "domain": "example.com",
      "language": "English",
      "sourcecountry": "Japan",
      "socialimage": "https://example.com/img.jpg"
    },
    {"url": "", "title": "no url, dropped"}
  ]
}`

func TestFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("maxrecords")
		w.Write([]byte(artListFixture))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, MaxRecords: 25})
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotQuery != "25" {
		t.Errorf("maxrecords param = %q, want 25", gotQuery)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.SourceID != "https://example.com/quake-tokyo" {
		t.Errorf("source_id = %q", rec.SourceID)
	}
	if rec.PublishedAt != "2026-01-17T09:00:00Z" {
		t.Errorf("published_at = %q", rec.PublishedAt)
	}
	if len(rec.MediaURLs) != 1 || rec.MediaURLs[0] != "https://example.com/img.jpg" {
		t.Errorf("media_urls = %v", rec.MediaURLs)
	}
	if rec.Entities["domain"] != "example.com" {
		t.Errorf("entities = %v", rec.Entities)
	}
}

func TestParseSeendate(t *testing.T) {
	cases := map[string]string{
		"20260117T090000Z": "2026-01-17T09:00:00Z",
		"not-a-date":       "not-a-date", // verbatim, counted downstream
		"":                 "",
	}
	for in, want := range cases {
		if got := parseSeendate(in); got != want {
			t.Errorf("parseSeendate(%q) = %q, want %q", in, got, want)
		}
	}
}
