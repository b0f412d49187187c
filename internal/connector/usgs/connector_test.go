package usgs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mihasm/news-globe/internal/record"
)

const feedFixture = `{
  "features": [
    {
      "id": "us7000abcd",
      "properties": {
        "mag": 6.2,
        "place": "32 km SSE of Tokyo, Japan",
        "time": 1768640400000,
        "url": "https://earthquake.usgs.gov/earthquakes/eventpage/us7000abcd",
        "tsunami": 0,
        "sig": 591,
        "code": "7000abcd"
      },
      "geometry": {"type": "Point", "coordinates": [139.69, 35.68, 41.3]}
    },
    {
      "id": "",
      "properties": {"mag": 1.1, "place": "somewhere", "time": 0, "code": ""},
      "geometry": {"type": "Point", "coordinates": [0, 0]}
    }
  ]
}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	c := New(Config{Feed: "all_day", FeedURL: srv.URL})
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (event without id must be skipped)", len(records))
	}

	rec := records[0]
	if rec.Source != "usgs" || rec.SourceID != "7000abcd" {
		t.Errorf("identity = %s/%s, want usgs/7000abcd", rec.Source, rec.SourceID)
	}
	if rec.Title != "M6.2 - 32 km SSE of Tokyo, Japan" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.PublishedAt != "2026-01-17T09:00:00Z" {
		t.Errorf("published_at = %q", rec.PublishedAt)
	}
	if !rec.HasCoordinates() || *rec.Lat != 35.68 || *rec.Lon != 139.69 {
		t.Errorf("coordinates = %v,%v", rec.Lat, rec.Lon)
	}
	if rec.Entities["depth_km"] != 41.3 {
		t.Errorf("depth_km = %v", rec.Entities["depth_km"])
	}
	if rec.Entities["usgs_feed"] != "all_day" {
		t.Errorf("usgs_feed = %v", rec.Entities["usgs_feed"])
	}
	if problems := record.Validate(&rec); len(problems) != 0 {
		t.Errorf("record invalid: %v", problems)
	}
}

func TestFactoryRejectsUnknownFeed(t *testing.T) {
	if _, err := NewFactory()(map[string]any{"feed": "nope"}, nil); err == nil {
		t.Fatal("expected error for unknown feed")
	}
}

func TestFactoryDefaults(t *testing.T) {
	c, err := NewFactory()(map[string]any{}, nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if c.Name() != "usgs" {
		t.Errorf("name = %q", c.Name())
	}
}
