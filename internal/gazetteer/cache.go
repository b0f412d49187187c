package gazetteer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/mihasm/news-globe/internal/logging"
)

var bucketLocations = []byte("locations")

// Cache wraps a Resolver with a bolt-backed lookup table. Both hits and
// misses are cached; a surface that resolved to nothing stays nothing
// without another upstream call.
type Cache struct {
	db     *bolt.DB
	next   Resolver
	logger *slog.Logger
}

// NewCache opens (or creates) the cache file at path in front of next.
func NewCache(path string, next Resolver, logger *slog.Logger) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open gazetteer cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLocations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}

	return &Cache{
		db:     db,
		next:   next,
		logger: logging.Default(logger).With("component", "gazetteer-cache"),
	}, nil
}

// Close closes the cache file.
func (c *Cache) Close() error {
	return c.db.Close()
}

type cachedResult struct {
	Found     bool       `json:"found"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// Resolve serves from the cache when possible, otherwise asks the wrapped
// resolver and stores whatever comes back. Keys are lowercased and trimmed so
// "Tokyo" and " tokyo " share an entry.
func (c *Cache) Resolve(ctx context.Context, surface string) (*Candidate, error) {
	key := []byte(strings.ToLower(strings.TrimSpace(surface)))
	if len(key) == 0 {
		return nil, nil
	}

	var cached []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketLocations).Get(key); v != nil {
			cached = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read gazetteer cache: %w", err)
	}

	if cached != nil {
		var res cachedResult
		if err := json.Unmarshal(cached, &res); err == nil {
			if !res.Found {
				return nil, nil
			}
			return res.Candidate, nil
		}
		c.logger.Warn("corrupt cache entry, refetching", "key", string(key))
	}

	cand, err := c.next.Resolve(ctx, surface)
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(cachedResult{Found: cand != nil, Candidate: cand})
	if err != nil {
		return cand, nil
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocations).Put(key, buf)
	})
	if err != nil {
		c.logger.Warn("gazetteer cache write failed", "key", string(key), "error", err)
	}
	return cand, nil
}
