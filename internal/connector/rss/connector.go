// Package rss harvests articles from a configurable list of RSS 2.0 and Atom
// feeds: parallel fan-out across feeds with a bounded worker count, per-host
// politeness delays, per-feed wall deadlines, and an item cap so one
// pathological feed cannot balloon a cycle.
package rss

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// Config holds RSS connector configuration.
type Config struct {
	// FeedsFile is a JSON file holding an array of feed URLs. A doublestar
	// glob ("feeds/**/*.json") merges every matching file. The file is
	// hot-reloaded on change.
	FeedsFile string

	// Feeds seeds the feed list directly; used by tests and small setups.
	Feeds []string

	MaxWorkers      int           // concurrent feed fetches, default 8
	RequestDelay    time.Duration // per-host politeness delay, default 1s
	FeedTimeout     time.Duration // per-feed wall deadline, default 20s
	FetchTimeout    time.Duration // optional deadline for the whole Fetch, 0 = none
	MaxItemsPerFeed int           // default 200

	Logger *slog.Logger
}

// Connector fetches all configured feeds each cycle.
type Connector struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	feeds []string
	hosts map[string]*rate.Limiter

	stopWatch func()
}

// New creates an RSS connector. When FeedsFile is set it is loaded
// immediately and watched for changes; a missing file at startup is an
// error, a broken reload keeps the previous list.
func New(cfg Config) (*Connector, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = time.Second
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 20 * time.Second
	}
	if cfg.MaxItemsPerFeed <= 0 {
		cfg.MaxItemsPerFeed = 200
	}

	c := &Connector{
		cfg:    cfg,
		client: connector.NewHTTPClient(15 * time.Second),
		logger: logging.Default(cfg.Logger).With("component", "connector", "source", "rss"),
		now:    time.Now,
		feeds:  cfg.Feeds,
		hosts:  make(map[string]*rate.Limiter),
	}

	if cfg.FeedsFile != "" {
		feeds, err := loadFeeds(cfg.FeedsFile)
		if err != nil {
			return nil, fmt.Errorf("rss connector: %w", err)
		}
		c.feeds = feeds

		if !isGlob(cfg.FeedsFile) {
			stop, err := connector.WatchFile(cfg.FeedsFile, c.logger, c.reloadFeeds)
			if err != nil {
				c.logger.Warn("feeds file watch unavailable", "error", err)
			} else {
				c.stopWatch = stop
			}
		}
	}

	c.logger.Info("rss connector ready", "feeds", len(c.feeds))
	return c, nil
}

// Close stops the feeds-file watcher.
func (c *Connector) Close() {
	if c.stopWatch != nil {
		c.stopWatch()
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "rss" }

// Fetch fans out over all feeds and returns every parsed article. A failing
// feed costs only its own items.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	feeds := c.currentFeeds()
	if len(feeds) == 0 {
		return nil, nil
	}

	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		records []record.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxWorkers)

	for _, feedURL := range feeds {
		g.Go(func() error {
			recs := c.fetchFeed(gctx, feedURL)
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil // feed failures never abort the cycle
		})
	}
	_ = g.Wait()

	// A cancelled deadline returns whatever is already produced.
	c.logger.Debug("rss fetch complete", "feeds", len(feeds), "records", len(records))
	return records, nil
}

// fetchFeed retrieves and parses one feed. All failures log and return nil.
func (c *Connector) fetchFeed(ctx context.Context, feedURL string) []record.Record {
	feedCtx, cancel := context.WithTimeout(ctx, c.cfg.FeedTimeout)
	defer cancel()

	if err := c.waitHost(feedCtx, feedURL); err != nil {
		return nil
	}

	body, err := connector.GetBody(feedCtx, c.client, feedURL, "application/rss+xml, application/atom+xml, application/xml")
	if err != nil {
		c.logger.Warn("feed fetch failed", "feed", feedURL, "error", err)
		return nil
	}

	feed, err := parseFeed(body)
	if err != nil {
		c.logger.Warn("feed parse failed", "feed", feedURL, "error", err)
		return nil
	}

	items := feed.Items
	if len(items) > c.cfg.MaxItemsPerFeed {
		items = items[:c.cfg.MaxItemsPerFeed]
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(items))
	for i := range items {
		if rec, ok := c.toRecord(&items[i], feed.Title); ok {
			rec.CollectedAt = collected
			records = append(records, rec)
		}
	}
	return records
}

func (c *Connector) toRecord(it *parsedItem, feedTitle string) (record.Record, bool) {
	title := strings.TrimSpace(connector.HTMLText(it.Title))
	description := strings.TrimSpace(connector.HTMLText(it.Description))
	if it.Link == "" || title == "" {
		return record.Record{}, false
	}

	text := description
	switch {
	case title != "" && description != "":
		text = title + ". " + description
	case title != "":
		text = title
	}

	published := it.Published
	if published.IsZero() {
		published = c.now().UTC()
	}

	return record.Record{
		Source:      "rss",
		SourceID:    strings.ToLower(it.Link),
		Title:       title,
		Text:        text,
		URL:         it.Link,
		Author:      feedTitle,
		PublishedAt: published.Format(time.RFC3339),
		Raw:         map[string]any{"title": it.Title, "url": it.Link},
	}, true
}

// waitHost applies the per-host politeness delay. Workers fetching different
// hosts proceed independently; two feeds on one host serialize.
func (c *Connector) waitHost(ctx context.Context, feedURL string) error {
	if c.cfg.RequestDelay <= 0 {
		return nil
	}
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Host)

	c.mu.Lock()
	limiter, ok := c.hosts[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.cfg.RequestDelay), 1)
		c.hosts[host] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}

func (c *Connector) currentFeeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.feeds))
	copy(out, c.feeds)
	return out
}

func (c *Connector) reloadFeeds() {
	feeds, err := loadFeeds(c.cfg.FeedsFile)
	if err != nil {
		c.logger.Error("feeds reload failed, keeping previous list", "error", err)
		return
	}
	c.mu.Lock()
	c.feeds = feeds
	c.mu.Unlock()
	c.logger.Info("feeds reloaded", "feeds", len(feeds))
}

func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// loadFeeds reads feed URLs from a JSON file, or from every file matching a
// doublestar glob, deduplicated in first-seen order.
func loadFeeds(path string) ([]string, error) {
	paths := []string{path}
	if isGlob(path) {
		matches, err := doublestar.FilepathGlob(path)
		if err != nil {
			return nil, fmt.Errorf("bad feeds glob %q: %w", path, err)
		}
		sort.Strings(matches)
		paths = matches
	}

	seen := make(map[string]bool)
	var feeds []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read feeds file: %w", err)
		}
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("feeds file %s must be a JSON array of URLs: %w", p, err)
		}
		for _, f := range list {
			f = strings.TrimSpace(f)
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			feeds = append(feeds, f)
		}
	}
	return feeds, nil
}
