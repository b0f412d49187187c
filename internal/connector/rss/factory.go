package rss

import (
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for RSS connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		delay := connector.ParamFloat(cfg, "request_delay", 1.0)
		return New(Config{
			FeedsFile:       connector.ParamString(cfg, "feeds_file", "rss_feeds.json"),
			MaxWorkers:      connector.ParamInt(cfg, "max_workers", 8),
			RequestDelay:    time.Duration(delay * float64(time.Second)),
			FeedTimeout:     time.Duration(connector.ParamFloat(cfg, "feed_timeout", 20) * float64(time.Second)),
			FetchTimeout:    time.Duration(connector.ParamFloat(cfg, "fetch_timeout", 0) * float64(time.Second)),
			MaxItemsPerFeed: connector.ParamInt(cfg, "max_items_per_feed", 200),
			Logger:          logger,
		})
	}
}
