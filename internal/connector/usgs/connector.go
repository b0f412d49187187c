// Package usgs harvests earthquake events from the USGS real-time GeoJSON
// feeds. The authoritative stream: every event arrives with coordinates, a
// magnitude, and an event id, so records from here never need enrichment.
package usgs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// Feeds maps feed names to USGS summary feed URLs.
var Feeds = map[string]string{
	"all_hour":         "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson",
	"all_day":          "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson",
	"significant_hour": "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_hour.geojson",
	"significant_day":  "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_day.geojson",
}

// Config holds USGS connector configuration.
type Config struct {
	Feed    string // feed name, defaults to significant_hour
	FeedURL string // overrides Feed when set; tests point this at a fixture
	Logger  *slog.Logger
}

// Connector polls one USGS feed.
type Connector struct {
	feedName string
	feedURL  string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a USGS connector.
func New(cfg Config) *Connector {
	feedName := cfg.Feed
	if _, ok := Feeds[feedName]; !ok {
		feedName = "significant_hour"
	}
	feedURL := cfg.FeedURL
	if feedURL == "" {
		feedURL = Feeds[feedName]
	}
	return &Connector{
		feedName: feedName,
		feedURL:  feedURL,
		client:   connector.NewHTTPClient(30 * time.Second),
		logger:   logging.Default(cfg.Logger).With("component", "connector", "source", "usgs"),
		now:      time.Now,
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "usgs" }

// feature mirrors one USGS GeoJSON feature.
type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag     *float64 `json:"mag"`
		Place   string   `json:"place"`
		Time    int64    `json:"time"` // ms epoch
		URL     string   `json:"url"`
		Tsunami int      `json:"tsunami"`
		Sig     *int     `json:"sig"`
		Code    string   `json:"code"`
	} `json:"properties"`
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"` // lon, lat, depth km
	} `json:"geometry"`
}

// Fetch retrieves the feed and converts each event to a record.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	var payload struct {
		Features []feature `json:"features"`
	}
	if err := connector.GetJSON(ctx, c.client, c.feedURL, &payload); err != nil {
		return nil, fmt.Errorf("usgs feed %s: %w", c.feedName, err)
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(payload.Features))
	for i := range payload.Features {
		f := &payload.Features[i]
		eventID := f.Properties.Code
		if eventID == "" {
			eventID = f.ID
		}
		if eventID == "" {
			continue
		}
		records = append(records, c.toRecord(f, eventID, collected))
	}

	c.logger.Debug("usgs fetch complete", "feed", c.feedName, "records", len(records))
	return records, nil
}

func (c *Connector) toRecord(f *feature, eventID string, collected int64) record.Record {
	props := &f.Properties

	title := props.Place
	if props.Mag != nil {
		title = fmt.Sprintf("M%.1f - %s", *props.Mag, props.Place)
	}

	var publishedAt string
	if props.Time > 0 {
		publishedAt = time.UnixMilli(props.Time).UTC().Format(time.RFC3339)
	}

	entities := map[string]any{
		"tsunami":   props.Tsunami != 0,
		"usgs_feed": c.feedName,
	}
	if props.Mag != nil {
		entities["magnitude"] = *props.Mag
	}
	if props.Sig != nil {
		entities["significance"] = *props.Sig
	}

	rec := record.Record{
		Source:      "usgs",
		SourceID:    eventID,
		CollectedAt: collected,
		Title:       title,
		URL:         props.URL,
		PublishedAt: publishedAt,
		Entities:    entities,
		Raw:         f,
	}
	if f.Geometry.Type == "Point" && len(f.Geometry.Coordinates) >= 2 {
		rec.Lon = record.Float(f.Geometry.Coordinates[0])
		rec.Lat = record.Float(f.Geometry.Coordinates[1])
		rec.LocationName = props.Place
		if len(f.Geometry.Coordinates) >= 3 {
			entities["depth_km"] = f.Geometry.Coordinates[2]
		}
	}
	return rec
}
