// Package adsb takes aircraft snapshots from the adsb.lol public API. The
// upstream takes centre + radius queries, so the configured bounding box is
// converted to a covering circle and the results filtered back to the box.
// The API has shipped under more than one URL shape over time; the first
// template that answers with an aircraft list is cached on the connector.
package adsb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/geo"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// DefaultTemplates are the endpoint shapes probed in order. {lat}, {lon} and
// {dist} are substituted per request.
var DefaultTemplates = []string{
	"https://api.adsb.lol/v2/lat/{lat}/lon/{lon}/dist/{dist}",
	"https://api.adsb.lol/v2/lat/{lat}/lon/{lon}/dist/{dist}/",
	"https://api.adsb.lol/api/aircraft/lat/{lat}/lon/{lon}/dist/{dist}",
	"https://api.adsb.lol/api/aircraft/lat/{lat}/lon/{lon}/dist/{dist}/",
}

// Config holds ADS-B connector configuration.
type Config struct {
	BBox      geo.BBox
	Timeout   time.Duration // per-request timeout, default 10s
	Templates []string      // endpoint templates, default DefaultTemplates
	Logger    *slog.Logger
}

// Connector fetches one aircraft snapshot per cycle.
type Connector struct {
	bbox      geo.BBox
	templates []string
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	template string // working endpoint, empty until first successful probe
}

// New creates an ADS-B connector. The bounding box must be well-formed.
func New(cfg Config) (*Connector, error) {
	b := cfg.BBox
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 ||
		b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return nil, fmt.Errorf("adsb connector: invalid bounding box %+v", b)
	}
	templates := cfg.Templates
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Connector{
		bbox:      b,
		templates: templates,
		client:    connector.NewHTTPClient(timeout),
		logger:    logging.Default(cfg.Logger).With("component", "connector", "source", "adsb"),
		now:       time.Now,
	}, nil
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "adsb" }

// Fetch queries the covering circle and filters the answer back to the box.
// Throttling (429/503) yields an empty batch, not an error. An empty result
// triggers one re-probe in case the cached endpoint shape went stale.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	clat, clon := c.bbox.Center()
	radius := c.bbox.RadiusNM()

	tpl, err := c.workingTemplate(ctx, clat, clon, radius)
	if err != nil {
		return nil, err
	}

	records, throttled, err := c.fetchSnapshot(ctx, tpl, clat, clon, radius)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 || throttled {
		return records, nil
	}

	// Legit empty airspace and endpoint breakage look the same; re-probe once.
	newTpl, probeErr := c.probe(ctx, clat, clon, radius)
	if probeErr != nil || newTpl == tpl {
		return records, nil
	}
	c.setTemplate(newTpl)
	records, _, err = c.fetchSnapshot(ctx, newTpl, clat, clon, radius)
	return records, err
}

func (c *Connector) workingTemplate(ctx context.Context, clat, clon, radius float64) (string, error) {
	c.mu.Lock()
	tpl := c.template
	c.mu.Unlock()
	if tpl != "" {
		return tpl, nil
	}

	tpl, err := c.probe(ctx, clat, clon, radius)
	if err != nil {
		return "", err
	}
	c.setTemplate(tpl)
	return tpl, nil
}

func (c *Connector) setTemplate(tpl string) {
	c.mu.Lock()
	c.template = tpl
	c.mu.Unlock()
}

// probe tries each template with a small radius until one answers with an
// aircraft list.
func (c *Connector) probe(ctx context.Context, clat, clon, radius float64) (string, error) {
	probeDist := max(1.0, min(10.0, radius))
	var lastErr error
	for _, tpl := range c.templates {
		var payload snapshot
		if err := connector.GetJSON(ctx, c.client, expand(tpl, clat, clon, probeDist), &payload); err != nil {
			lastErr = err
			continue
		}
		if payload.aircraftList() != nil {
			return tpl, nil
		}
	}
	return "", fmt.Errorf("adsb endpoint probe failed: %w", lastErr)
}

func (c *Connector) fetchSnapshot(ctx context.Context, tpl string, clat, clon, radius float64) (records []record.Record, throttled bool, err error) {
	var payload snapshot
	if err := connector.GetJSON(ctx, c.client, expand(tpl, clat, clon, radius), &payload); err != nil {
		var se *connector.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusTooManyRequests || se.Code == http.StatusServiceUnavailable) {
			c.logger.Debug("adsb upstream throttled", "status", se.Code)
			return nil, true, nil
		}
		return nil, false, err
	}

	ts := payload.timestamp(c.now)
	for _, raw := range payload.aircraftList() {
		rec, ok := c.toRecord(raw, ts)
		if !ok {
			continue
		}
		if !c.bbox.Contains(*rec.Lat, *rec.Lon) {
			continue
		}
		records = append(records, rec)
	}
	c.logger.Debug("adsb snapshot", "aircraft", len(records))
	return records, false, nil
}

func (c *Connector) toRecord(d map[string]any, ts int64) (record.Record, bool) {
	icao := strings.ToLower(strings.TrimSpace(firstString(d, "icao", "hex", "icao24")))
	if icao == "" {
		return record.Record{}, false
	}
	lat := normFloat(d["lat"])
	lon := normFloat(d["lon"])
	if lat == nil || lon == nil {
		return record.Record{}, false
	}

	callsign := strings.TrimSpace(firstString(d, "flight", "call", "callsign"))
	title := "Aircraft " + icao
	if callsign != "" {
		title = "Aircraft " + callsign
	}

	entities := map[string]any{"icao": icao}
	putIfSet(entities, "callsign", callsign)
	putIfSet(entities, "alt_baro_ft", normInt(d["alt_baro"]))
	putIfSet(entities, "alt_geom_ft", normInt(d["alt_geom"]))
	putIfSet(entities, "speed_knots", normFloat(d["gs"]))
	putIfSet(entities, "heading_deg", normFloat(d["track"]))
	putIfSet(entities, "vertical_rate_fpm", firstInt(d, "baro_rate", "geom_rate", "rate"))
	putIfSet(entities, "squawk", strings.TrimSpace(stringOr(d["squawk"])))
	putIfSet(entities, "category", strings.TrimSpace(firstString(d, "category", "t")))
	putIfSet(entities, "seen_pos_sec", normInt(d["seen_pos"]))
	putIfSet(entities, "seen_sec", normInt(d["seen"]))
	putIfSet(entities, "rssi", normFloat(d["rssi"]))

	return record.Record{
		Source:      "adsb",
		SourceID:    icao,
		CollectedAt: ts,
		Title:       title,
		Lat:         lat,
		Lon:         lon,
		Entities:    entities,
		Raw:         d,
	}, true
}

// expand substitutes the placeholders in an endpoint template.
func expand(tpl string, lat, lon, dist float64) string {
	r := strings.NewReplacer(
		"{lat}", strconv.FormatFloat(lat, 'f', 6, 64),
		"{lon}", strconv.FormatFloat(lon, 'f', 6, 64),
		"{dist}", strconv.FormatFloat(dist, 'f', 0, 64),
	)
	return r.Replace(tpl)
}

// snapshot is one upstream response; the aircraft list key varies by API
// generation, and numeric fields come back as strings often enough that the
// entries stay untyped.
type snapshot struct {
	Now      *float64         `json:"now"`
	Time     *float64         `json:"time"`
	AC       []map[string]any `json:"ac"`
	Aircraft []map[string]any `json:"aircraft"`
	States   []map[string]any `json:"states"`
}

func (s *snapshot) aircraftList() []map[string]any {
	switch {
	case s.AC != nil:
		return s.AC
	case s.Aircraft != nil:
		return s.Aircraft
	case s.States != nil:
		return s.States
	}
	return nil
}

func (s *snapshot) timestamp(now func() time.Time) int64 {
	if s.Now != nil {
		return int64(*s.Now)
	}
	if s.Time != nil {
		return int64(*s.Time)
	}
	return now().Unix()
}

func firstString(d map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOr(d[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(d map[string]any, keys ...string) *int {
	for _, k := range keys {
		if n := normInt(d[k]); n != nil {
			return n
		}
	}
	return nil
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func normFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return &f
		}
	}
	return nil
}

func normInt(v any) *int {
	if f := normFloat(v); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

func putIfSet(entities map[string]any, key string, v any) {
	switch x := v.(type) {
	case string:
		if x != "" {
			entities[key] = x
		}
	case *int:
		if x != nil {
			entities[key] = *x
		}
	case *float64:
		if x != nil {
			entities[key] = *x
		}
	}
}
