package gdacs

import (
	"fmt"
	"log/slog"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for GDACS connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		feed := connector.ParamString(cfg, "feed", "geojson")
		if _, ok := Feeds[feed]; !ok {
			return nil, fmt.Errorf("gdacs connector: unknown feed %q", feed)
		}
		return New(Config{
			Feed:    feed,
			FeedURL: connector.ParamString(cfg, "feed_url", ""),
			Logger:  logger,
		}), nil
	}
}
