// Package gazetteer resolves place-name surfaces to coordinates. The pipeline
// consumes the Resolver interface; behind it sit an HTTP client for the
// deployment topology where the gazetteer runs as its own service, an offline
// SQLite resolver with candidate scoring, and a bolt-backed cache that
// remembers hits and misses so repeated surfaces cost nothing.
package gazetteer

import (
	"context"
	"strconv"
	"unicode"
)

// Candidate is one resolved place.
type Candidate struct {
	GeonameID    int64   `json:"geoname_id"`
	Name         string  `json:"name"`
	Country      string  `json:"country"`
	Admin1       string  `json:"admin1"`
	Admin2       string  `json:"admin2"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	FeatureClass string  `json:"feature_class"`
	FeatureCode  string  `json:"feature_code"`
	Population   int64   `json:"population"`
}

// Resolver maps a surface string to its best candidate, or nil when nothing
// matches. Implementations log per-surface failures rather than propagate
// them; a nil candidate with a nil error is the common negative answer.
type Resolver interface {
	Resolve(ctx context.Context, surface string) (*Candidate, error)
}

// looseFloat parses a numeric value that may arrive as a number, an integer,
// or a string with trailing junk. Upstream gazetteer data is not always clean.
func looseFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case []byte:
		return floatPrefix(string(x))
	case string:
		return floatPrefix(x)
	default:
		return 0, false
	}
}

// floatPrefix parses the longest float prefix of s: "35.6895 (approx)"
// yields 35.6895.
func floatPrefix(s string) (float64, bool) {
	i := 0
	for i < len(s) && unicode.IsSpace(rune(s[i])) {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := false
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits = true
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits = true
		}
	}
	if !digits {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[start:i], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
