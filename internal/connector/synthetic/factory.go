package synthetic

import (
	"log/slog"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/geo"
)

// NewFactory returns a connector.Factory for synthetic connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		var box geo.BBox
		if b := connector.ParamFloats(cfg, "bbox"); len(b) == 4 {
			box = geo.BBox{MinLat: b[0], MinLon: b[1], MaxLat: b[2], MaxLon: b[3]}
		}
		return New(Config{
			Rate:   connector.ParamInt(cfg, "rate", 5),
			BBox:   box,
			Seed:   uint64(connector.ParamInt(cfg, "seed", 0)),
			Logger: logger,
		}), nil
	}
}
