package jsonfeed

import (
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for jsonfeed connectors. Field
// paths come from a "field_paths" object of field name → JSONPath.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		fieldPaths := make(map[string]string)
		if m, ok := cfg["field_paths"].(map[string]any); ok {
			for k, v := range m {
				if s, ok := v.(string); ok {
					fieldPaths[k] = s
				}
			}
		}
		return New(Config{
			URL:        connector.ParamString(cfg, "url", ""),
			ItemsPath:  connector.ParamString(cfg, "items_path", ""),
			FieldPaths: fieldPaths,
			Timeout:    time.Duration(connector.ParamFloat(cfg, "timeout", 20) * float64(time.Second)),
			Logger:     logger,
		})
	}
}
