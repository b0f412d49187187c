// Package jsonfeed polls an arbitrary JSON endpoint and maps it to ingestion
// records with JSONPath. One path selects the item array, per-field paths
// (evaluated against each item) pick out the record fields, so most ad-hoc
// JSON APIs can be ingested with configuration alone. Defaults cover the
// JSON Feed 1.1 format.
package jsonfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/theory/jsonpath"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// DefaultFieldPaths map record fields to JSON Feed 1.1 item keys.
var DefaultFieldPaths = map[string]string{
	"source_id":    "$.id",
	"title":        "$.title",
	"text":         "$.content_text",
	"url":          "$.url",
	"author":       "$.authors[0].name",
	"published_at": "$.date_published",
}

// fieldNames are the record fields a path may target.
var fieldNames = []string{
	"source_id", "title", "text", "url", "author", "published_at",
	"location_name", "lat", "lon",
}

// Config holds jsonfeed connector configuration.
type Config struct {
	URL string

	// ItemsPath selects the item array from the response, default "$.items[*]".
	ItemsPath string

	// FieldPaths maps record field names to JSONPaths evaluated per item.
	// Unset fields fall back to DefaultFieldPaths; an empty string disables
	// a default.
	FieldPaths map[string]string

	Timeout time.Duration // default 20s
	Logger  *slog.Logger
}

// Connector polls one JSON endpoint.
type Connector struct {
	url    string
	items  *jsonpath.Path
	fields map[string]*jsonpath.Path
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// New creates a jsonfeed connector. All paths are compiled here so a broken
// mapping fails at startup, not per cycle.
func New(cfg Config) (*Connector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("jsonfeed connector: url required")
	}
	itemsPath := cfg.ItemsPath
	if itemsPath == "" {
		itemsPath = "$.items[*]"
	}
	items, err := jsonpath.Parse(itemsPath)
	if err != nil {
		return nil, fmt.Errorf("jsonfeed connector: items path %q: %w", itemsPath, err)
	}

	fields := make(map[string]*jsonpath.Path)
	for _, name := range fieldNames {
		path, configured := cfg.FieldPaths[name]
		if !configured {
			path = DefaultFieldPaths[name]
		}
		if path == "" {
			continue
		}
		p, err := jsonpath.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("jsonfeed connector: %s path %q: %w", name, path, err)
		}
		fields[name] = p
	}
	for name := range cfg.FieldPaths {
		if fields[name] == nil && cfg.FieldPaths[name] != "" {
			return nil, fmt.Errorf("jsonfeed connector: unknown field %q", name)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Connector{
		url:    cfg.URL,
		items:  items,
		fields: fields,
		client: connector.NewHTTPClient(timeout),
		logger: logging.Default(cfg.Logger).With("component", "connector", "source", "jsonfeed"),
		now:    time.Now,
	}, nil
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "jsonfeed" }

// Fetch polls the endpoint and maps every selected item. Items without a
// source_id are skipped.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	var doc any
	if err := connector.GetJSON(ctx, c.client, c.url, &doc); err != nil {
		return nil, err
	}

	items := c.items.Select(doc)
	collected := c.now().Unix()
	records := make([]record.Record, 0, len(items))
	for _, item := range items {
		if rec, ok := c.toRecord(item, collected); ok {
			records = append(records, rec)
		}
	}

	c.logger.Debug("jsonfeed fetch complete", "items", len(items), "records", len(records))
	return records, nil
}

func (c *Connector) toRecord(item any, collected int64) (record.Record, bool) {
	sourceID := c.stringField(item, "source_id")
	if sourceID == "" {
		return record.Record{}, false
	}

	rec := record.Record{
		Source:       "jsonfeed",
		SourceID:     sourceID,
		CollectedAt:  collected,
		Title:        c.stringField(item, "title"),
		Text:         c.stringField(item, "text"),
		URL:          c.stringField(item, "url"),
		Author:       c.stringField(item, "author"),
		PublishedAt:  c.stringField(item, "published_at"),
		LocationName: c.stringField(item, "location_name"),
		Lat:          c.floatField(item, "lat"),
		Lon:          c.floatField(item, "lon"),
		Raw:          item,
	}
	return rec, true
}

func (c *Connector) field(item any, name string) any {
	p := c.fields[name]
	if p == nil {
		return nil
	}
	res := p.Select(item)
	if len(res) == 0 {
		return nil
	}
	return res[0]
}

func (c *Connector) stringField(item any, name string) string {
	switch v := c.field(item, name).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (c *Connector) floatField(item any, name string) *float64 {
	switch v := c.field(item, name).(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}
