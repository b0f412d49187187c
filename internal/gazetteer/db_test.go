package gazetteer

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/mihasm/news-globe/internal/logging"
	_ "modernc.org/sqlite"
)

// fixtureDB builds a small gazetteer with ambiguous names: Tokyo in Japan and
// a tiny Tokyo in the US, Georgia the country and the US state, Paris twice,
// the Mississippi river and state, Hiroshima city and prefecture.
func fixtureDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gazetteer.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE places (
			geoname_id    INTEGER PRIMARY KEY,
			name          TEXT NOT NULL,
			country       TEXT NOT NULL DEFAULT '',
			admin1        TEXT NOT NULL DEFAULT '',
			admin2        TEXT NOT NULL DEFAULT '',
			lat           REAL NOT NULL,
			lon           REAL NOT NULL,
			feature_class TEXT NOT NULL DEFAULT '',
			feature_code  TEXT NOT NULL DEFAULT '',
			population    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE names (
			name       TEXT NOT NULL,
			geoname_id INTEGER NOT NULL,
			preferred  INTEGER NOT NULL DEFAULT 0,
			short      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX idx_names_name ON names(name)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture schema: %v", err)
		}
	}

	places := []struct {
		id            int64
		name, country string
		lat, lon      any
		class, code   string
		pop           any
	}{
		{1850144, "Tokyo", "JP", 35.6895, 139.6917, "P", "PPLC", 8336599},
		{999001, "Tokyo", "US", 39.55, -89.29, "P", "PPL", 300},
		{614540, "Georgia", "GE", 42.0, 43.5, "A", "PCLI", 3714000},
		{4197000, "Georgia", "US", 32.75, -83.5, "A", "ADM1", 10617423},
		{2988507, "Paris", "FR", 48.8534, 2.3488, "P", "PPLC", 2138551},
		{4717560, "Paris", "US", 33.66, -95.55, "P", "PPL", 24839},
		{4412862, "Mississippi River", "US", 29.15, -89.25, "H", "STM", 0},
		{4436296, "Mississippi", "US", 32.75, -89.75, "A", "ADM1", 2976149},
		{1862415, "Hiroshima", "JP", 34.4, 132.45, "P", "PPLA", 1143841},
		{1862413, "Hiroshima Prefecture", "JP", 34.43, 132.74, "A", "ADM1", 2881000},
		{555001, "Dirtyville", "GB", "51.5074 (approx)", -0.1278, "P", "PPL", "8900000 est"},
	}
	for _, p := range places {
		_, err := db.Exec(
			`INSERT INTO places (geoname_id, name, country, lat, lon, feature_class, feature_code, population)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.id, p.name, p.country, p.lat, p.lon, p.class, p.code, p.pop)
		if err != nil {
			t.Fatalf("fixture place %d: %v", p.id, err)
		}
	}

	names := []struct {
		name      string
		id        int64
		preferred int
	}{
		{"tokyo", 1850144, 1},
		{"tokio", 1850144, 0},
		{"tokyo", 999001, 0},
		{"georgia", 614540, 1},
		{"georgia", 4197000, 0},
		{"paris", 2988507, 1},
		{"paris", 4717560, 0},
		{"mississippi", 4412862, 0},
		{"mississippi", 4436296, 0},
		{"hiroshima", 1862415, 0},
		{"hiroshima", 1862413, 0},
		{"hiroshima prefecture", 1862413, 1},
		{"dirtyville", 555001, 0},
	}
	for _, n := range names {
		_, err := db.Exec(
			`INSERT INTO names (name, geoname_id, preferred) VALUES (?, ?, ?)`,
			n.name, n.id, n.preferred)
		if err != nil {
			t.Fatalf("fixture name %q: %v", n.name, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	d, err := OpenDB(DBConfig{Path: path, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenDBMissingFile(t *testing.T) {
	_, err := OpenDB(DBConfig{Path: filepath.Join(t.TempDir(), "absent.db")})
	if err == nil {
		t.Fatal("expected error for missing database file")
	}
}

func TestResolveBasic(t *testing.T) {
	d := fixtureDB(t)
	ctx := context.Background()

	c, err := d.Resolve(ctx, "Tokyo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c == nil || c.Country != "JP" {
		t.Fatalf("Resolve(Tokyo) = %+v, want the Japanese capital", c)
	}
	if c.Lat != 35.6895 || c.Lon != 139.6917 {
		t.Errorf("coords = %v, %v", c.Lat, c.Lon)
	}

	// Alternate spelling hits the same place.
	c, err = d.Resolve(ctx, "Tokio")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.GeonameID != 1850144 {
		t.Errorf("Resolve(Tokio) = %+v", c)
	}

	// Too short and unknown surfaces resolve to nothing.
	for _, surface := range []string{"x", " ", "Nowhereville"} {
		c, err := d.Resolve(ctx, surface)
		if err != nil {
			t.Fatal(err)
		}
		if c != nil {
			t.Errorf("Resolve(%q) = %+v, want nil", surface, c)
		}
	}
}

func TestResolveCountryLevelPreference(t *testing.T) {
	d := fixtureDB(t)
	ctx := context.Background()

	// A bare ambiguous name prefers the country over the bigger US state.
	c, err := d.Resolve(ctx, "georgia")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Country != "GE" {
		t.Errorf("Resolve(georgia) = %+v, want the country", c)
	}

	// An explicit country token flips it.
	c, err = d.Resolve(ctx, "georgia us")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Country != "US" {
		t.Errorf("Resolve(georgia us) = %+v, want the US state", c)
	}
}

func TestResolveCountryBias(t *testing.T) {
	d := fixtureDB(t)
	ctx := context.Background()

	tests := []struct {
		surface string
		country string
	}{
		{"paris", "FR"},
		{"paris us", "US"},
		{"paris france", "FR"},
	}
	for _, tt := range tests {
		c, err := d.Resolve(ctx, tt.surface)
		if err != nil {
			t.Fatal(err)
		}
		if c == nil || c.Country != tt.country {
			t.Errorf("Resolve(%q) = %+v, want country %s", tt.surface, c, tt.country)
		}
	}
}

func TestResolveFeatureIntent(t *testing.T) {
	d := fixtureDB(t)
	ctx := context.Background()

	// The feature keyword overrides the state's population prior.
	c, err := d.Resolve(ctx, "mississippi river")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.FeatureClass != "H" {
		t.Errorf("Resolve(mississippi river) = %+v, want the river", c)
	}

	// Without it, the populated state wins.
	c, err = d.Resolve(ctx, "mississippi")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.FeatureClass != "A" {
		t.Errorf("Resolve(mississippi) = %+v, want the state", c)
	}
}

func TestResolveAdminQualifierPenalty(t *testing.T) {
	d := fixtureDB(t)

	c, err := d.Resolve(context.Background(), "hiroshima")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.FeatureCode != "PPLA" {
		t.Errorf("Resolve(hiroshima) = %+v, want the city over the prefecture", c)
	}
}

func TestResolveDirtyNumericFields(t *testing.T) {
	d := fixtureDB(t)

	c, err := d.Resolve(context.Background(), "dirtyville")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("Resolve(dirtyville) = nil")
	}
	if c.Lat != 51.5074 {
		t.Errorf("lat = %v, want float prefix of the dirty string", c.Lat)
	}
	if c.Lon != -0.1278 {
		t.Errorf("lon = %v", c.Lon)
	}
	if c.Population != 8900000 {
		t.Errorf("population = %d, want 8900000", c.Population)
	}
}

func TestQueryLimitAndOrder(t *testing.T) {
	d := fixtureDB(t)
	ctx := context.Background()

	cands, err := d.Query(ctx, "tokyo", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Country != "JP" || cands[1].Country != "US" {
		t.Errorf("order = %s, %s; want JP first", cands[0].Country, cands[1].Country)
	}

	cands, err = d.Query(ctx, "tokyo", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Errorf("limit 1 returned %d candidates", len(cands))
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		surface string
		want    query
	}{
		{"tokyo", query{name: "tokyo", single: true}},
		{"tokyo jp", query{name: "tokyo", country: "JP", single: true}},
		{"paris france", query{name: "paris", country: "FR", single: true}},
		{"mississippi river", query{name: "mississippi", intent: "H"}},
		{"lake garda italy", query{name: "garda", country: "IT", intent: "H"}},
		// A lone country-ish token is the name itself.
		{"fr", query{name: "fr", single: true}},
		{"france", query{name: "france", single: true}},
	}
	for _, tt := range tests {
		got := parseQuery(foldSurface(tt.surface))
		if got != tt.want {
			t.Errorf("parseQuery(%q) = %+v, want %+v", tt.surface, got, tt.want)
		}
	}
}

func TestOmitsAdminQualifier(t *testing.T) {
	tests := []struct {
		surface  string
		official string
		want     bool
	}{
		{"hiroshima", "Hiroshima Prefecture", true},
		{"osaka", "Osaka Region", true},
		{"hiroshima", "Hiroshima", false},
		{"hiroshima", "Hiroshima City Hall", false},
		{"kanto hiroshima", "Hiroshima Prefecture", false},
	}
	for _, tt := range tests {
		if got := omitsAdminQualifier(tt.surface, tt.official); got != tt.want {
			t.Errorf("omitsAdminQualifier(%q, %q) = %v, want %v",
				tt.surface, tt.official, got, tt.want)
		}
	}
}

func TestFloatPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"35.6895", 35.6895, true},
		{"35.6895 (approx)", 35.6895, true},
		{"  -0.1278", -0.1278, true},
		{"8900000 est", 8900000, true},
		{"n/a", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}
	for _, tt := range tests {
		got, ok := floatPrefix(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("floatPrefix(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
