// Package synthetic generates demo events with coordinates so the map and
// the clustering engine can be exercised without any upstream credentials.
// Disabled unless explicitly scheduled.
package synthetic

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mihasm/news-globe/internal/geo"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

var placeCaser = cases.Title(language.English)

var eventKinds = []string{
	"earthquake", "flood", "protest", "wildfire", "storm", "power outage",
}

// Config holds synthetic connector configuration.
type Config struct {
	// Rate is the number of events generated per fetch, default 5.
	Rate int

	// BBox constrains generated coordinates. Zero value means the populated
	// latitudes of the whole world.
	BBox geo.BBox

	Seed   uint64 // deterministic stream when non-zero; tests use this
	Logger *slog.Logger
}

// Connector fabricates one batch of events per cycle.
type Connector struct {
	rate   int
	bbox   geo.BBox
	rng    *rand.Rand
	logger *slog.Logger
	now    func() time.Time
}

// New creates a synthetic connector.
func New(cfg Config) *Connector {
	rate := cfg.Rate
	if rate <= 0 {
		rate = 5
	}
	bbox := cfg.BBox
	if bbox == (geo.BBox{}) {
		bbox = geo.BBox{MinLat: -55, MinLon: -180, MaxLat: 70, MaxLon: 180}
	}
	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Connector{
		rate:   rate,
		bbox:   bbox,
		rng:    rng,
		logger: logging.Default(cfg.Logger).With("component", "connector", "source", "synthetic"),
		now:    time.Now,
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "synthetic" }

// Fetch fabricates Rate events.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	now := c.now()
	records := make([]record.Record, 0, c.rate)
	for i := 0; i < c.rate; i++ {
		records = append(records, c.event(now))
	}
	c.logger.Debug("synthetic batch generated", "records", len(records))
	return records, nil
}

func (c *Connector) event(now time.Time) record.Record {
	kind := eventKinds[c.rng.IntN(len(eventKinds))]
	place := placeCaser.String(petname.Generate(2, " "))
	lat := c.bbox.MinLat + c.rng.Float64()*(c.bbox.MaxLat-c.bbox.MinLat)
	lon := c.bbox.MinLon + c.rng.Float64()*(c.bbox.MaxLon-c.bbox.MinLon)

	id := uuid.Must(uuid.NewV7()).String()
	title := fmt.Sprintf("Reported %s near %s", kind, place)
	return record.Record{
		Source:      "synthetic",
		SourceID:    id,
		CollectedAt: now.Unix(),
		Title:       title,
		Text:        fmt.Sprintf("%s. Synthetic demo event %s.", title, id[:8]),
		Author:      petname.Generate(1, ""),
		PublishedAt: now.UTC().Format(time.RFC3339),
		Lat:         record.Float(lat),
		Lon:         record.Float(lon),
		Entities: map[string]any{
			"kind":  kind,
			"place": place,
			"demo":  true,
		},
	}
}
