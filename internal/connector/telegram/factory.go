package telegram

import (
	"log/slog"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for Telegram connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		return New(Config{
			WatchlistFile: connector.ParamString(cfg, "watchlist_file", ""),
			Channels:      connector.ParamStrings(cfg, "channels"),
			Concurrency:   connector.ParamInt(cfg, "concurrency", 10),
			Logger:        logger,
		})
	}
}
