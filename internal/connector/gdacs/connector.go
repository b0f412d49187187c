// Package gdacs harvests multi-hazard alerts (floods, cyclones, volcanoes,
// earthquakes) from the GDACS public feeds, in either GeoJSON or RSS form.
package gdacs

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// Feeds maps feed names to GDACS feed URLs.
var Feeds = map[string]string{
	"geojson": "https://www.gdacs.org/contentdata/xml/gdacs.geojson",
	"rss":     "https://www.gdacs.org/contentdata/xml/rss.xml",
	"rss_24h": "https://www.gdacs.org/contentdata/xml/rss_24h.xml",
	"rss_7d":  "https://www.gdacs.org/contentdata/xml/rss_7d.xml",
}

// fromdateLayouts are the two formats GDACS has been seen using for the
// fromdate property.
var fromdateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// Config holds GDACS connector configuration.
type Config struct {
	Feed    string // feed name, defaults to geojson
	FeedURL string // overrides Feed when set
	Logger  *slog.Logger
}

// Connector polls one GDACS feed.
type Connector struct {
	feedName string
	feedURL  string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a GDACS connector.
func New(cfg Config) *Connector {
	feedName := cfg.Feed
	if _, ok := Feeds[feedName]; !ok {
		feedName = "geojson"
	}
	feedURL := cfg.FeedURL
	if feedURL == "" {
		feedURL = Feeds[feedName]
	}
	return &Connector{
		feedName: feedName,
		feedURL:  feedURL,
		client:   connector.NewHTTPClient(30 * time.Second),
		logger:   logging.Default(cfg.Logger).With("component", "connector", "source", "gdacs"),
		now:      time.Now,
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "gdacs" }

// Fetch retrieves the configured feed and converts events to records.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	if c.feedName == "geojson" {
		return c.fetchGeoJSON(ctx)
	}
	return c.fetchRSS(ctx)
}

// feature mirrors one GDACS GeoJSON feature.
type feature struct {
	ID         json.Number `json:"id"`
	Properties struct {
		EventID     json.Number `json:"eventid"`
		EventType   string      `json:"eventtype"`
		AlertLevel  string      `json:"alertlevel"`
		Title       string      `json:"name"`
		Description string      `json:"description"`
		Link        string      `json:"url"`
		FromDate    string      `json:"fromdate"`
		Country     string      `json:"country"`
		Severity    any         `json:"severitydata"`
	} `json:"properties"`
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"` // lon, lat
	} `json:"geometry"`
}

func (c *Connector) fetchGeoJSON(ctx context.Context) ([]record.Record, error) {
	var payload struct {
		Features []feature `json:"features"`
	}
	if err := connector.GetJSON(ctx, c.client, c.feedURL, &payload); err != nil {
		return nil, fmt.Errorf("gdacs feed %s: %w", c.feedName, err)
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(payload.Features))
	for i := range payload.Features {
		f := &payload.Features[i]
		eventID := f.Properties.EventID.String()
		if eventID == "" || eventID == "0" {
			eventID = f.ID.String()
		}
		if eventID == "" {
			continue
		}

		rec := record.Record{
			Source:      "gdacs",
			SourceID:    eventID,
			CollectedAt: collected,
			Title:       f.Properties.Title,
			Text:        f.Properties.Description,
			URL:         f.Properties.Link,
			PublishedAt: parseFromdate(f.Properties.FromDate),
			Entities: map[string]any{
				"event_type":  f.Properties.EventType,
				"alert_level": f.Properties.AlertLevel,
				"country":     f.Properties.Country,
				"severity":    f.Properties.Severity,
			},
			Raw: f,
		}
		if f.Geometry.Type == "Point" && len(f.Geometry.Coordinates) >= 2 {
			rec.Lon = record.Float(f.Geometry.Coordinates[0])
			rec.Lat = record.Float(f.Geometry.Coordinates[1])
			rec.LocationName = f.Properties.Country
		}
		records = append(records, rec)
	}

	c.logger.Debug("gdacs fetch complete", "feed", c.feedName, "records", len(records))
	return records, nil
}

// rssItem mirrors one GDACS RSS item.
type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

func (c *Connector) fetchRSS(ctx context.Context) ([]record.Record, error) {
	body, err := connector.GetBody(ctx, c.client, c.feedURL, "application/rss+xml")
	if err != nil {
		return nil, fmt.Errorf("gdacs feed %s: %w", c.feedName, err)
	}

	var payload struct {
		Items []rssItem `xml:"channel>item"`
	}
	if err := xml.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse gdacs rss: %w", err)
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(payload.Items))
	for i := range payload.Items {
		it := &payload.Items[i]
		if it.Link == "" || it.Title == "" {
			continue
		}

		var publishedAt string
		if it.PubDate != "" {
			if t, err := time.Parse(time.RFC1123Z, it.PubDate); err == nil {
				publishedAt = t.UTC().Format(time.RFC3339)
			} else if t, err := time.Parse(time.RFC1123, it.PubDate); err == nil {
				publishedAt = t.UTC().Format(time.RFC3339)
			}
		}

		records = append(records, record.Record{
			Source:      "gdacs",
			SourceID:    it.Link, // RSS items carry no event id; the URL is stable
			CollectedAt: collected,
			Title:       it.Title,
			Text:        connector.HTMLText(it.Description),
			URL:         it.Link,
			PublishedAt: publishedAt,
			Raw:         it,
		})
	}

	c.logger.Debug("gdacs fetch complete", "feed", c.feedName, "records", len(records))
	return records, nil
}

// parseFromdate normalises the GDACS fromdate property, which arrives in two
// different formats, both without a zone. GDACS times are UTC.
func parseFromdate(s string) string {
	for _, layout := range fromdateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}
