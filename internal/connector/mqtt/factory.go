package mqtt

import (
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for MQTT connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		return New(Config{
			BrokerURL: connector.ParamString(cfg, "broker_url", ""),
			Topic:     connector.ParamString(cfg, "topic", ""),
			ClientID:  connector.ParamString(cfg, "client_id", "newsglobe"),
			Username:  connector.ParamString(cfg, "username", ""),
			Password:  connector.ParamString(cfg, "password", ""),
			QoS:       byte(connector.ParamInt(cfg, "qos", 1)),
			Encoding:  connector.ParamString(cfg, "encoding", "json"),
			Window:    time.Duration(connector.ParamFloat(cfg, "window", 5) * float64(time.Second)),
			Logger:    logger,
		})
	}
}
