package web

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
)

// writeTestMMDB writes a minimal GeoIP database mapping each /32 to a
// country code and optional city.
func writeTestMMDB(t *testing.T, path string, entries map[string][2]string) {
	t.Helper()

	tree, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType:            "Test-GeoIP",
		RecordSize:              24,
		IncludeReservedNetworks: true,
	})
	if err != nil {
		t.Fatalf("mmdbwriter.New: %v", err)
	}

	for ip, loc := range entries {
		_, network, err := net.ParseCIDR(ip + "/32")
		if err != nil {
			t.Fatalf("parse %s: %v", ip, err)
		}
		rec := mmdbtype.Map{
			"country": mmdbtype.Map{"iso_code": mmdbtype.String(loc[0])},
		}
		if loc[1] != "" {
			rec["city"] = mmdbtype.Map{
				"names": mmdbtype.Map{"en": mmdbtype.String(loc[1])},
			}
		}
		if err := tree.Insert(network, rec); err != nil {
			t.Fatalf("insert %s: %v", ip, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if _, err := tree.WriteTo(f); err != nil {
		t.Fatalf("write mmdb: %v", err)
	}
}

func loadedGeoIP(t *testing.T, entries map[string][2]string) *GeoIP {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geo.mmdb")
	writeTestMMDB(t, path, entries)

	g := NewGeoIP()
	t.Cleanup(g.Close)
	if _, err := g.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g
}

func TestGeoIPEmpty(t *testing.T) {
	g := NewGeoIP()
	defer g.Close()

	for _, in := range []string{"1.2.3.4", "", "not-an-ip"} {
		if _, ok := g.Lookup(in); ok {
			t.Errorf("Lookup(%q) hit without a loaded database", in)
		}
	}
}

func TestGeoIPLoadErrors(t *testing.T) {
	g := NewGeoIP()
	defer g.Close()

	if _, err := g.Load(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("Load on a missing file must fail")
	}

	junk := filepath.Join(t.TempDir(), "junk.mmdb")
	if err := os.WriteFile(junk, []byte("not a valid mmdb"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Load(junk); err == nil {
		t.Error("Load on a corrupt file must fail")
	}
}

func TestGeoIPLookup(t *testing.T) {
	g := loadedGeoIP(t, map[string][2]string{
		"8.8.8.8": {"US", "Mountain View"},
		"1.1.1.1": {"AU", ""}, // country only
	})

	loc, ok := g.Lookup("8.8.8.8")
	if !ok || loc.Country != "US" || loc.City != "Mountain View" {
		t.Errorf("Lookup(8.8.8.8) = %+v ok=%v", loc, ok)
	}

	loc, ok = g.Lookup("1.1.1.1")
	if !ok || loc.Country != "AU" || loc.City != "" {
		t.Errorf("Lookup(1.1.1.1) = %+v ok=%v", loc, ok)
	}

	if _, ok := g.Lookup("10.0.0.1"); ok {
		t.Error("Lookup(10.0.0.1) must miss")
	}
}

func TestGeoIPReloadClosesOldReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.mmdb")
	writeTestMMDB(t, path, map[string][2]string{"8.8.8.8": {"US", ""}})

	g := NewGeoIP()
	defer g.Close()

	if _, err := g.Load(path); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if _, err := g.Load(path); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if _, ok := g.Lookup("8.8.8.8"); !ok {
		t.Fatal("Lookup after reload must still hit")
	}
}

func TestGeoIPWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.mmdb")
	writeTestMMDB(t, path, map[string][2]string{"8.8.8.8": {"US", ""}})

	g := NewGeoIP()
	defer g.Close()

	if err := g.WatchFile(path); err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	if loc, ok := g.Lookup("8.8.8.8"); !ok || loc.Country != "US" {
		t.Fatalf("initial load: Lookup = %+v ok=%v", loc, ok)
	}

	// Rewriting the file in place must trigger a reload.
	writeTestMMDB(t, path, map[string][2]string{"8.8.8.8": {"DE", ""}})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if loc, ok := g.Lookup("8.8.8.8"); ok && loc.Country == "DE" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("database not reloaded after rewrite")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
