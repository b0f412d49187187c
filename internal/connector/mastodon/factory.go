package mastodon

import (
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for Mastodon connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		return New(Config{
			Instances:  connector.ParamStrings(cfg, "instances"),
			Hashtags:   connector.ParamStrings(cfg, "hashtags"),
			Timeout:    time.Duration(connector.ParamFloat(cfg, "timeout", 10) * float64(time.Second)),
			MaxWorkers: connector.ParamInt(cfg, "max_workers", 8),
			Logger:     logger,
		}), nil
	}
}
