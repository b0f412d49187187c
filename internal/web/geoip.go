package web

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oschwald/maxminddb-golang"
)

// GeoIPInfo describes a loaded MMDB database.
type GeoIPInfo struct {
	DatabaseType string
	BuildTime    time.Time
}

// Location is the geographic metadata decoded for an access-log line.
type Location struct {
	Country string // ISO 3166-1 alpha-2
	City    string
}

// mmdbRecord contains only the fields we decode from the MMDB file.
type mmdbRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// GeoIP maps client IPs to coarse locations for the access log, backed by a
// MaxMind MMDB file. Safe for concurrent use; the reader is swapped
// atomically so lookups never block on a reload.
type GeoIP struct {
	reader atomic.Pointer[maxminddb.Reader]

	mu        sync.Mutex
	stopWatch func()
}

// NewGeoIP creates an empty GeoIP lookup. Every Lookup misses until a
// database is loaded via Load or WatchFile.
func NewGeoIP() *GeoIP {
	return &GeoIP{}
}

// Lookup resolves an IP address to a Location. The second return value is
// false on miss, parse error, or when no database is loaded.
func (g *GeoIP) Lookup(value string) (Location, bool) {
	r := g.reader.Load()
	if r == nil {
		return Location{}, false
	}

	ip := net.ParseIP(value)
	if ip == nil {
		return Location{}, false
	}

	var rec mmdbRecord
	if err := r.Lookup(ip, &rec); err != nil {
		return Location{}, false
	}

	loc := Location{
		Country: rec.Country.ISOCode,
		City:    rec.City.Names["en"],
	}
	return loc, loc != Location{}
}

// Load opens an MMDB file and swaps it in; the previous reader, if any, is
// closed after the swap.
func (g *GeoIP) Load(path string) (GeoIPInfo, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return GeoIPInfo{}, fmt.Errorf("open mmdb %q: %w", path, err)
	}
	if old := g.reader.Swap(r); old != nil {
		old.Close()
	}
	return GeoIPInfo{
		DatabaseType: r.Metadata.DatabaseType,
		BuildTime:    time.Unix(int64(r.Metadata.BuildEpoch), 0),
	}, nil
}

// WatchFile loads path now and reloads it on every write or create event, so
// a refreshed GeoIP database is picked up without a restart. A second call
// replaces the previous watch. The initial load failing is not an error; the
// file may appear later.
func (g *GeoIP) WatchFile(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("watch %q: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					g.Load(path)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	g.mu.Lock()
	if g.stopWatch != nil {
		g.stopWatch()
	}
	g.stopWatch = func() {
		w.Close()
		<-done
	}
	g.mu.Unlock()

	g.Load(path)
	return nil
}

// Close stops any file watch and releases the current reader.
func (g *GeoIP) Close() {
	g.mu.Lock()
	if g.stopWatch != nil {
		g.stopWatch()
		g.stopWatch = nil
	}
	g.mu.Unlock()

	if r := g.reader.Swap(nil); r != nil {
		r.Close()
	}
}
