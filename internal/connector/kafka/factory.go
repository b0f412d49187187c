package kafka

import (
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
)

// NewFactory returns a connector.Factory for Kafka connectors.
func NewFactory() connector.Factory {
	return func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		var saslCfg *SASLConfig
		if mech := connector.ParamString(cfg, "sasl_mechanism", ""); mech != "" {
			saslCfg = &SASLConfig{
				Mechanism: mech,
				User:      connector.ParamString(cfg, "sasl_user", ""),
				Password:  connector.ParamString(cfg, "sasl_password", ""),
			}
		}
		return New(Config{
			Brokers:  connector.ParamStrings(cfg, "brokers"),
			Topic:    connector.ParamString(cfg, "topic", ""),
			Group:    connector.ParamString(cfg, "group", "newsglobe"),
			Encoding: connector.ParamString(cfg, "encoding", "json"),
			TLS:      connector.ParamBool(cfg, "tls", false),
			SASL:     saslCfg,
			PollWait: time.Duration(connector.ParamFloat(cfg, "poll_wait", 5) * float64(time.Second)),
			Logger:   logger,
		})
	}
}
