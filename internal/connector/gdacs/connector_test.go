package gdacs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mihasm/news-globe/internal/record"
)

const geojsonFixture = `{
  "features": [
    {
      "id": 1016833,
      "properties": {
        "eventid": 1016833,
        "eventtype": "EQ",
        "alertlevel": "Orange",
        "name": "Earthquake in Japan",
        "description": "Magnitude 6.2 earthquake",
        "url": "https://www.gdacs.org/report.aspx?eventid=1016833",
        "fromdate": "2026-01-17 09:00:00",
        "country": "Japan",
        "severitydata": {"severity": 6.2}
      },
      "geometry": {"type": "Point", "coordinates": [139.69, 35.68]}
    }
  ]
}`

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <item>
      <title>Green alert: Tropical Cyclone FREDDY-26</title>
      <link>https://www.gdacs.org/report.aspx?eventid=1000999</link>
      <description>&lt;p&gt;Tropical Cyclone FREDDY-26 formed&lt;/p&gt;</description>
      <pubDate>Sat, 17 Jan 2026 09:30:00 GMT</pubDate>
    </item>
    <item>
      <title></title>
      <link>https://www.gdacs.org/nothing</link>
    </item>
  </channel>
</rss>`

func TestFetchGeoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geojsonFixture))
	}))
	defer srv.Close()

	c := New(Config{Feed: "geojson", FeedURL: srv.URL})
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.SourceID != "1016833" {
		t.Errorf("source_id = %q", rec.SourceID)
	}
	if rec.PublishedAt != "2026-01-17T09:00:00Z" {
		t.Errorf("published_at = %q", rec.PublishedAt)
	}
	if rec.Entities["event_type"] != "EQ" || rec.Entities["alert_level"] != "Orange" {
		t.Errorf("entities = %v", rec.Entities)
	}
	if !rec.HasCoordinates() || rec.LocationName != "Japan" {
		t.Errorf("location = %v,%v %q", rec.Lat, rec.Lon, rec.LocationName)
	}
	if problems := record.Validate(&rec); len(problems) != 0 {
		t.Errorf("record invalid: %v", problems)
	}
}

func TestFetchRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	c := New(Config{Feed: "rss_24h", FeedURL: srv.URL})
	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (title-less item must be skipped)", len(records))
	}

	rec := records[0]
	if rec.SourceID != "https://www.gdacs.org/report.aspx?eventid=1000999" {
		t.Errorf("source_id = %q", rec.SourceID)
	}
	if rec.Text != "Tropical Cyclone FREDDY-26 formed" {
		t.Errorf("text = %q", rec.Text)
	}
	if rec.PublishedAt != "2026-01-17T09:30:00Z" {
		t.Errorf("published_at = %q", rec.PublishedAt)
	}
}

func TestParseFromdate(t *testing.T) {
	cases := map[string]string{
		"2026-01-17 09:00:00": "2026-01-17T09:00:00Z",
		"2026-01-17T09:00:00": "2026-01-17T09:00:00Z",
		"garbage":             "",
		"":                    "",
	}
	for in, want := range cases {
		if got := parseFromdate(in); got != want {
			t.Errorf("parseFromdate(%q) = %q, want %q", in, got, want)
		}
	}
}
