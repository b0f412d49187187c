// Package telegram harvests posts from public Telegram channels by scraping
// the t.me/s/<channel> web previews. No API keys or accounts: the watchlist
// of channels comes from a JSON file that is hot-reloaded on change.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

const publicBase = "https://t.me/s"

// Config holds Telegram connector configuration.
type Config struct {
	// WatchlistFile is a JSON file naming the channels to scrape: either a
	// plain array or {"channels": [...]}. "@" prefixes are stripped,
	// duplicates removed.
	WatchlistFile string

	// Channels seeds the list directly; used by tests.
	Channels []string

	// BaseURL overrides the t.me base; tests point this at a fixture.
	BaseURL string

	Concurrency int // concurrent channel scrapes, default 10
	Logger      *slog.Logger
}

// Connector scrapes each watched channel once per cycle.
type Connector struct {
	cfg    Config
	base   string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	channels []string

	stopWatch func()
}

// New creates a Telegram connector. A configured watchlist file that cannot
// be read at startup is an error; a broken reload keeps the previous list.
func New(cfg Config) (*Connector, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	base := cfg.BaseURL
	if base == "" {
		base = publicBase
	}

	c := &Connector{
		cfg:      cfg,
		base:     strings.TrimRight(base, "/"),
		client:   connector.NewHTTPClient(15 * time.Second),
		logger:   logging.Default(cfg.Logger).With("component", "connector", "source", "telegram"),
		now:      time.Now,
		channels: normalizeChannels(cfg.Channels),
	}

	if cfg.WatchlistFile != "" {
		channels, err := loadWatchlist(cfg.WatchlistFile)
		if err != nil {
			return nil, fmt.Errorf("telegram connector: %w", err)
		}
		c.channels = channels

		stop, err := connector.WatchFile(cfg.WatchlistFile, c.logger, c.reloadWatchlist)
		if err != nil {
			c.logger.Warn("watchlist watch unavailable", "error", err)
		} else {
			c.stopWatch = stop
		}
	}

	c.logger.Info("telegram connector ready", "channels", len(c.channels))
	return c, nil
}

// Close stops the watchlist watcher.
func (c *Connector) Close() {
	if c.stopWatch != nil {
		c.stopWatch()
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "telegram" }

// Fetch scrapes every watched channel in parallel. A failing channel costs
// only its own posts.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	channels := c.currentChannels()
	if len(channels) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		records []record.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, channel := range channels {
		g.Go(func() error {
			recs := c.scrapeChannel(gctx, channel)
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Debug("telegram fetch complete", "channels", len(channels), "records", len(records))
	return records, nil
}

func (c *Connector) scrapeChannel(ctx context.Context, channel string) []record.Record {
	page, err := connector.GetBody(ctx, c.client, c.base+"/"+channel, "text/html")
	if err != nil {
		c.logger.Warn("channel scrape failed", "channel", channel, "error", err)
		return nil
	}

	posts, err := parseChannelPage(channel, page)
	if err != nil {
		c.logger.Warn("channel parse failed", "channel", channel, "error", err)
		return nil
	}

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(posts))
	for i := range posts {
		records = append(records, c.toRecord(&posts[i], collected))
	}
	return records
}

func (c *Connector) toRecord(p *post, collected int64) record.Record {
	return record.Record{
		Source:      "telegram",
		SourceID:    p.Channel + "/" + strconv.FormatInt(p.MessageID, 10),
		CollectedAt: collected,
		Title:       connector.Clip(p.Text, 100),
		Text:        p.Text,
		URL:         fmt.Sprintf("https://t.me/%s/%d", p.Channel, p.MessageID),
		Author:      p.Channel,
		PublishedAt: p.DateISO,
		MediaURLs:   p.MediaURLs,
		Entities: map[string]any{
			"channel":    p.Channel,
			"message_id": p.MessageID,
		},
		Raw: p,
	}
}

func (c *Connector) currentChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.channels))
	copy(out, c.channels)
	return out
}

func (c *Connector) reloadWatchlist() {
	channels, err := loadWatchlist(c.cfg.WatchlistFile)
	if err != nil {
		c.logger.Error("watchlist reload failed, keeping previous list", "error", err)
		return
	}
	c.mu.Lock()
	c.channels = channels
	c.mu.Unlock()
	c.logger.Info("watchlist reloaded", "channels", len(channels))
}

// loadWatchlist reads the channel list from a JSON file that is either a
// plain array or an object with a top-level "channels" array.
func loadWatchlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return normalizeChannels(list), nil
	}

	var wrapped struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil || wrapped.Channels == nil {
		return nil, fmt.Errorf("watchlist %s must be a JSON array or {\"channels\": [...]}", path)
	}
	return normalizeChannels(wrapped.Channels), nil
}

// normalizeChannels strips "@" prefixes and whitespace and deduplicates,
// preserving first-seen order.
func normalizeChannels(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range raw {
		ch = strings.TrimPrefix(strings.TrimSpace(ch), "@")
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}
