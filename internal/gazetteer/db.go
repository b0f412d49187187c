package gazetteer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mihasm/news-globe/internal/logging"
)

// DB resolves surfaces against an offline gazetteer database produced by the
// build tooling. Expected layout:
//
//	CREATE TABLE places (
//	    geoname_id    INTEGER PRIMARY KEY,
//	    name          TEXT NOT NULL,
//	    country       TEXT NOT NULL DEFAULT '',
//	    admin1        TEXT NOT NULL DEFAULT '',
//	    admin2        TEXT NOT NULL DEFAULT '',
//	    lat           REAL NOT NULL,
//	    lon           REAL NOT NULL,
//	    feature_class TEXT NOT NULL DEFAULT '',
//	    feature_code  TEXT NOT NULL DEFAULT '',
//	    population    INTEGER NOT NULL DEFAULT 0
//	);
//	CREATE TABLE names (
//	    name       TEXT NOT NULL,
//	    geoname_id INTEGER NOT NULL,
//	    preferred  INTEGER NOT NULL DEFAULT 0,
//	    short      INTEGER NOT NULL DEFAULT 0
//	);
//	CREATE INDEX idx_names_name ON names(name);
//
// The names table holds lowercased canonical and alternate names; preferred
// and short carry the corresponding alternate-name flags.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// DBConfig configures the SQLite resolver.
type DBConfig struct {
	Path   string
	Logger *slog.Logger
}

// OpenDB opens the gazetteer database. A missing file is an error; callers
// treat it as fatal since the resolver is useless without data.
func OpenDB(cfg DBConfig) (*DB, error) {
	logger := logging.Default(cfg.Logger).With("component", "gazetteer-db")

	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("gazetteer database: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open gazetteer database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &DB{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Resolve returns the best-scoring candidate for surface, or nil when the
// surface is too short or unknown.
func (d *DB) Resolve(ctx context.Context, surface string) (*Candidate, error) {
	if len(strings.TrimSpace(surface)) < 2 {
		return nil, nil
	}
	cands, err := d.Query(ctx, surface, 1)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, nil
	}
	return &cands[0], nil
}

// Query returns candidates for a surface, best first. The full surface is
// looked up verbatim first; when that name is unknown, the surface is retried
// with country and feature-intent tokens stripped. limit 0 returns all
// candidates.
func (d *DB) Query(ctx context.Context, surface string, limit int) ([]Candidate, error) {
	full := foldSurface(surface)
	if full == "" {
		return nil, nil
	}
	q := parseQuery(full)

	lookups := []string{full}
	if q.name != full {
		lookups = append(lookups, q.name)
	}

	var scored []scoredCandidate
	for _, name := range lookups {
		var err error
		scored, err = d.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(scored) > 0 {
			break
		}
	}

	for i := range scored {
		scored[i].score = scoreCandidate(&scored[i], q, full)
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].Population != scored[j].Population {
			return scored[i].Population > scored[j].Population
		}
		return scored[i].GeonameID < scored[j].GeonameID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]Candidate, len(scored))
	for i, sc := range scored {
		out[i] = sc.Candidate
	}
	return out, nil
}

type scoredCandidate struct {
	Candidate
	preferred bool
	short     bool
	score     float64
}

func (d *DB) fetch(ctx context.Context, name string) ([]scoredCandidate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT p.geoname_id, p.name, p.country, p.admin1, p.admin2,
		       p.lat, p.lon, p.feature_class, p.feature_code, p.population,
		       n.preferred, n.short
		FROM names n
		JOIN places p ON p.geoname_id = n.geoname_id
		WHERE n.name = ?
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query gazetteer name %q: %w", name, err)
	}
	defer rows.Close()

	var out []scoredCandidate
	for rows.Next() {
		var (
			sc                  scoredCandidate
			lat, lon, pop       any
			preferred, shortFlg int
		)
		if err := rows.Scan(
			&sc.GeonameID, &sc.Name, &sc.Country, &sc.Admin1, &sc.Admin2,
			&lat, &lon, &sc.FeatureClass, &sc.FeatureCode, &pop,
			&preferred, &shortFlg,
		); err != nil {
			return nil, fmt.Errorf("scan gazetteer row: %w", err)
		}

		var ok bool
		if sc.Lat, ok = looseFloat(lat); !ok {
			d.logger.Warn("unparseable latitude", "geoname_id", sc.GeonameID, "value", lat)
			continue
		}
		if sc.Lon, ok = looseFloat(lon); !ok {
			d.logger.Warn("unparseable longitude", "geoname_id", sc.GeonameID, "value", lon)
			continue
		}
		if p, ok := looseFloat(pop); ok {
			sc.Population = int64(p)
		}
		sc.preferred = preferred != 0
		sc.short = shortFlg != 0
		out = append(out, sc)
	}
	return out, rows.Err()
}

// query is the parsed form of a surface: the name to look up plus any country
// bias and feature intent its tokens carried.
type query struct {
	name    string
	country string
	intent  string
	single  bool
}

// intentClasses maps feature keywords in the surface to GeoNames feature
// classes: "mississippi river" wants H records, not the state.
var intentClasses = map[string]string{
	"river": "H", "lake": "H", "sea": "H",
	"mountain": "T", "mount": "T", "island": "T",
	"city": "P", "town": "P", "village": "P",
	"country": "A",
}

// adminQualifiers are trailing words of official names that a surface can
// omit without being wrong: "hiroshima" for "Hiroshima Prefecture".
var adminQualifiers = map[string]bool{
	"province": true, "region": true, "state": true, "district": true,
	"county": true, "prefecture": true, "governorate": true, "oblast": true,
	"municipality": true, "department": true,
}

func parseQuery(full string) query {
	tokens := strings.Fields(full)

	var (
		q    query
		rest []string
	)
	for _, tok := range tokens {
		if q.country == "" && len(tokens) > 1 {
			if len(tok) == 2 && isoCountries[tok] {
				q.country = strings.ToUpper(tok)
				continue
			}
			if code, ok := countryAliases[tok]; ok {
				q.country = code
				continue
			}
		}
		if q.intent == "" && len(tokens) > 1 {
			if class, ok := intentClasses[tok]; ok {
				q.intent = class
				continue
			}
		}
		rest = append(rest, tok)
	}
	if len(rest) == 0 {
		rest = tokens
		q.country = ""
		q.intent = ""
	}
	q.name = strings.Join(rest, " ")
	q.single = len(rest) == 1 && q.intent == ""
	return q
}

// scoreCandidate ranks one candidate for a query. Population is the prior;
// name flags, feature class, country bias, and admin qualifiers adjust it.
func scoreCandidate(sc *scoredCandidate, q query, full string) float64 {
	s := math.Log10(float64(sc.Population) + 1)

	if sc.preferred {
		s += 0.35
	}
	if sc.short {
		s -= 0.6
	}

	// Longer surfaces are more specific.
	s += math.Min(0.5, 0.05*float64(len(full)))

	switch {
	case q.intent != "":
		// A feature-intent mismatch must beat any population prior:
		// "mississippi river" never means the state.
		if sc.FeatureClass == q.intent {
			s += 1.2
		} else {
			s -= 6.0
		}
	case q.single:
		switch {
		case sc.FeatureClass == "A" && strings.HasPrefix(sc.FeatureCode, "PCL"):
			s += 1.0
		case sc.FeatureClass == "P":
			s += 0.5
		case sc.FeatureClass == "A":
			s -= 0.3
		}
	}

	if q.country != "" {
		if sc.Country == q.country {
			s += 2.5
		} else {
			s -= 1.5
		}
	}

	if omitsAdminQualifier(q.name, sc.Name) {
		s -= 0.8
	}
	return s
}

// omitsAdminQualifier reports whether the surface is a strict subset of the
// official name whose extra tokens are all administrative qualifiers.
func omitsAdminQualifier(surface, official string) bool {
	ot := strings.Fields(strings.ToLower(official))
	st := strings.Fields(surface)
	if len(ot) <= len(st) {
		return false
	}

	have := make(map[string]bool, len(st))
	for _, t := range st {
		have[t] = true
	}
	matched := 0
	for _, t := range ot {
		if have[t] {
			matched++
			continue
		}
		if !adminQualifiers[t] {
			return false
		}
	}
	return matched >= len(st)
}

// foldSurface lowercases and collapses whitespace.
func foldSurface(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
