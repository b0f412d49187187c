// Package gdelt harvests global news articles from the GDELT DOC 2.0 API.
// The broadest source in the system: one query sweeps worldwide coverage, at
// the cost of needing location enrichment downstream.
package gdelt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// DocEndpoint is the GDELT DOC 2.0 API.
const DocEndpoint = "https://api.gdeltproject.org/api/v2/doc/doc"

// DefaultQuery sweeps the event types the aggregator cares about.
const DefaultQuery = "(protest OR riot OR earthquake OR flood OR cyclone OR breaking news OR news OR battle)"

// seendateLayout is GDELT's compact timestamp format.
const seendateLayout = "20060102T150405Z"

// Config holds GDELT connector configuration.
type Config struct {
	Query      string // defaults to DefaultQuery
	MaxRecords int    // defaults to 50
	Endpoint   string // defaults to DocEndpoint; tests point this at a fixture
	Logger     *slog.Logger
}

// Connector polls the GDELT article list.
type Connector struct {
	query      string
	maxRecords int
	endpoint   string
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a GDELT connector.
func New(cfg Config) *Connector {
	query := cfg.Query
	if query == "" {
		query = DefaultQuery
	}
	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = 50
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DocEndpoint
	}
	return &Connector{
		query:      query,
		maxRecords: maxRecords,
		endpoint:   endpoint,
		client:     connector.NewHTTPClient(20 * time.Second),
		logger:     logging.Default(cfg.Logger).With("component", "connector", "source", "gdelt"),
		now:        time.Now,
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "gdelt" }

// article mirrors one GDELT ArtList entry.
type article struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	SeenDate      string `json:"seendate"`
	Domain        string `json:"domain"`
	Language      string `json:"language"`
	SourceCountry string `json:"sourcecountry"`
	SocialImage   string `json:"socialimage"`
}

// Fetch retrieves the newest articles matching the query.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	params := url.Values{
		"query":      {c.query},
		"mode":       {"ArtList"},
		"format":     {"json"},
		"maxrecords": {strconv.Itoa(c.maxRecords)},
		"sort":       {"datedesc"},
	}

	var payload struct {
		Articles []article `json:"articles"`
	}
	if err := connector.GetJSON(ctx, c.client, c.endpoint+"?"+params.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("gdelt articles: %w", err)
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(payload.Articles))
	for i := range payload.Articles {
		a := &payload.Articles[i]
		if a.URL == "" {
			continue
		}

		rec := record.Record{
			Source:      "gdelt",
			SourceID:    a.URL, // article URL is the unique identifier
			CollectedAt: collected,
			Title:       a.Title,
			URL:         a.URL,
			PublishedAt: parseSeendate(a.SeenDate),
			Entities: map[string]any{
				"domain":         a.Domain,
				"language":       a.Language,
				"source_country": a.SourceCountry,
			},
			Raw: a,
		}
		if a.SocialImage != "" {
			rec.MediaURLs = []string{a.SocialImage}
		}
		records = append(records, rec)
	}

	c.logger.Debug("gdelt fetch complete", "records", len(records))
	return records, nil
}

// parseSeendate converts GDELT's compact seendate ("20260117T090000Z") to
// RFC3339. Unparseable values pass through verbatim so the pipeline's
// timestamp counters see them.
func parseSeendate(s string) string {
	if s == "" {
		return ""
	}
	if t, err := time.Parse(seendateLayout, s); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return s
}
