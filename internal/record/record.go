// Package record defines the canonical ingestion record produced by every
// connector and consumed by the ingestion pipeline, plus its validator.
//
// A record is pure data. Validation returns human-readable problems rather
// than errors so callers can count and log them without unwrapping.
package record

import (
	"fmt"
	"sort"
	"strings"
)

// Sources lists every connector name allowed in Record.Source.
var Sources = map[string]bool{
	"gdelt":     true,
	"telegram":  true,
	"mastodon":  true,
	"adsb":      true,
	"ais":       true,
	"rss":       true,
	"gdacs":     true,
	"usgs":      true,
	"kafka":     true,
	"mqtt":      true,
	"jsonfeed":  true,
	"synthetic": true,
}

// Record is the unified shape every connector emits.
//
// Source plus SourceID is the global identity: SourceID alone is only unique
// within its source (a URL, a message id, an event id). CollectedAt is the
// harvest time in Unix seconds; PublishedAt, when present, is the upstream
// event time in ISO-8601.
type Record struct {
	Source      string   `json:"source"`
	SourceID    string   `json:"source_id"`
	CollectedAt int64    `json:"collected_at"`
	Title       string   `json:"title,omitempty"`
	Text        string   `json:"text,omitempty"`
	URL         string   `json:"url,omitempty"`
	Author      string   `json:"author,omitempty"`
	MediaURLs   []string `json:"media_urls,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`

	Entities     map[string]any `json:"entities,omitempty"`
	LocationName string         `json:"location_name,omitempty"`
	Lat          *float64       `json:"lat,omitempty"`
	Lon          *float64       `json:"lon,omitempty"`

	// Raw carries the original upstream payload for debugging. Opaque.
	Raw any `json:"raw,omitempty"`
}

// HasCoordinates reports whether both coordinates are set.
func (r *Record) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// Key returns the (source, source_id) identity as a single comparable string.
func (r *Record) Key() string {
	return r.Source + "\x00" + r.SourceID
}

// Validate checks a record and returns a list of problems; an empty list
// means the record is valid. Idempotent and side-effect free.
func Validate(r *Record) []string {
	var problems []string

	switch {
	case strings.TrimSpace(r.Source) == "":
		problems = append(problems, "source is required")
	case !Sources[r.Source]:
		problems = append(problems, fmt.Sprintf("unknown source %q (allowed: %s)", r.Source, allowedSources()))
	}

	if strings.TrimSpace(r.SourceID) == "" {
		problems = append(problems, "source_id is required")
	}

	if r.CollectedAt <= 0 {
		problems = append(problems, fmt.Sprintf("collected_at must be a positive Unix timestamp, got %d", r.CollectedAt))
	}

	switch {
	case r.Lat != nil && r.Lon == nil:
		problems = append(problems, "lat is set but lon is missing")
	case r.Lon != nil && r.Lat == nil:
		problems = append(problems, "lon is set but lat is missing")
	case r.Lat != nil && r.Lon != nil:
		if *r.Lat < -90 || *r.Lat > 90 {
			problems = append(problems, fmt.Sprintf("lat %v out of range [-90, 90]", *r.Lat))
		}
		if *r.Lon < -180 || *r.Lon > 180 {
			problems = append(problems, fmt.Sprintf("lon %v out of range [-180, 180]", *r.Lon))
		}
	}

	return problems
}

func allowedSources() string {
	names := make([]string, 0, len(Sources))
	for name := range Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Float is a convenience for building coordinate pointers.
func Float(v float64) *float64 { return &v }
