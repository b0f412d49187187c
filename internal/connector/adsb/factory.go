package adsb

import (
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/geo"
)

// NewFactory returns a connector.Factory for ADS-B connectors. The bounding
// box comes either from a 4-element "bbox" list [min_lat, min_lon, max_lat,
// max_lon] or from individual min_lat/min_lon/max_lat/max_lon keys.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		var box geo.BBox
		if b := connector.ParamFloats(cfg, "bbox"); len(b) == 4 {
			box = geo.BBox{MinLat: b[0], MinLon: b[1], MaxLat: b[2], MaxLon: b[3]}
		} else {
			box = geo.BBox{
				MinLat: connector.ParamFloat(cfg, "min_lat", 0),
				MinLon: connector.ParamFloat(cfg, "min_lon", 0),
				MaxLat: connector.ParamFloat(cfg, "max_lat", 0),
				MaxLon: connector.ParamFloat(cfg, "max_lon", 0),
			}
		}
		return New(Config{
			BBox:    box,
			Timeout: time.Duration(connector.ParamFloat(cfg, "timeout", 10) * float64(time.Second)),
			Logger:  logger,
		})
	}
}
