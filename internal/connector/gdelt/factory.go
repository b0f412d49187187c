package gdelt

import (
	"log/slog"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for GDELT connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		return New(Config{
			Query:      connector.ParamString(cfg, "query", ""),
			MaxRecords: connector.ParamInt(cfg, "max_records", 50),
			Endpoint:   connector.ParamString(cfg, "endpoint", ""),
			Logger:     logger,
		}), nil
	}
}
