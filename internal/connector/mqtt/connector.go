// Package mqtt snapshots ingestion records from an MQTT topic. MQTT pushes,
// the supervisor pulls, so each Fetch is a bounded subscribe-collect-
// disconnect window; a persistent session keeps QoS 1 messages queued
// between windows.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// Config holds MQTT connector configuration.
type Config struct {
	BrokerURL string // e.g. tcp://broker:1883 or ssl://broker:8883
	Topic     string
	ClientID  string // default "newsglobe"
	Username  string
	Password  string
	QoS       byte   // default 1
	Encoding  string // payload encoding: "json" (default) or "msgpack"

	// Window bounds one collect cycle, default 5s.
	Window time.Duration

	Logger *slog.Logger
}

// Connector collects one window of messages per cycle.
type Connector struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an MQTT connector.
func New(cfg Config) (*Connector, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt connector: broker_url required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt connector: topic required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "newsglobe"
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	switch cfg.Encoding {
	case "", "json":
		cfg.Encoding = "json"
	case "msgpack":
	default:
		return nil, fmt.Errorf("mqtt connector: unsupported encoding %q (supported: json, msgpack)", cfg.Encoding)
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Second
	}
	return &Connector{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "connector", "source", "mqtt"),
		now:    time.Now,
	}, nil
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "mqtt" }

// Fetch connects, subscribes, collects for the window, and disconnects.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetCleanSession(false).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(false)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", c.cfg.BrokerURL, err)
	}
	defer client.Disconnect(250)

	var (
		mu      sync.Mutex
		records []record.Record
		seq     int
	)
	collected := c.now().Unix()
	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		mu.Lock()
		defer mu.Unlock()
		seq++
		rec, err := c.decode(msg, collected, seq)
		if err != nil {
			c.logger.Warn("undecodable mqtt payload", "topic", msg.Topic(), "error", err)
			return
		}
		records = append(records, rec)
	}
	if err := wait(ctx, client.Subscribe(c.cfg.Topic, c.cfg.QoS, handler)); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", c.cfg.Topic, err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.Window):
	}
	if err := wait(context.Background(), client.Unsubscribe(c.cfg.Topic)); err != nil {
		c.logger.Warn("mqtt unsubscribe failed", "error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	c.logger.Debug("mqtt window complete", "records", len(records))
	return records, ctx.Err()
}

// wireRecord matches the kafka connector's payload shape so producers can
// publish the same bytes to either transport.
type wireRecord struct {
	SourceID     string         `json:"source_id" msgpack:"source_id"`
	Title        string         `json:"title" msgpack:"title"`
	Text         string         `json:"text" msgpack:"text"`
	URL          string         `json:"url" msgpack:"url"`
	Author       string         `json:"author" msgpack:"author"`
	PublishedAt  string         `json:"published_at" msgpack:"published_at"`
	LocationName string         `json:"location_name" msgpack:"location_name"`
	Lat          *float64       `json:"lat" msgpack:"lat"`
	Lon          *float64       `json:"lon" msgpack:"lon"`
	MediaURLs    []string       `json:"media_urls" msgpack:"media_urls"`
	Entities     map[string]any `json:"entities" msgpack:"entities"`
	CollectedAt  int64          `json:"collected_at" msgpack:"collected_at"`
}

func (c *Connector) decode(msg pahomqtt.Message, collected int64, seq int) (record.Record, error) {
	var w wireRecord
	var raw any
	switch c.cfg.Encoding {
	case "msgpack":
		if err := msgpack.Unmarshal(msg.Payload(), &w); err != nil {
			return record.Record{}, err
		}
		raw = &w
	default:
		if err := json.Unmarshal(msg.Payload(), &w); err != nil {
			return record.Record{}, err
		}
		raw = json.RawMessage(msg.Payload())
	}

	sourceID := w.SourceID
	if sourceID == "" {
		// MQTT has no offsets; message ids recycle, so disambiguate with the
		// window timestamp and an in-window sequence number.
		sourceID = fmt.Sprintf("%s/%d/%d-%d", msg.Topic(), msg.MessageID(), collected, seq)
	}
	if w.CollectedAt <= 0 {
		w.CollectedAt = collected
	}

	entities := w.Entities
	if entities == nil {
		entities = make(map[string]any)
	}
	entities["mqtt_topic"] = msg.Topic()
	entities["mqtt_message_id"] = strconv.Itoa(int(msg.MessageID()))

	return record.Record{
		Source:       "mqtt",
		SourceID:     sourceID,
		CollectedAt:  w.CollectedAt,
		Title:        w.Title,
		Text:         w.Text,
		URL:          w.URL,
		Author:       w.Author,
		PublishedAt:  w.PublishedAt,
		LocationName: w.LocationName,
		Lat:          w.Lat,
		Lon:          w.Lon,
		MediaURLs:    w.MediaURLs,
		Entities:     entities,
		Raw:          raw,
	}, nil
}

// wait blocks on a paho token with context cancellation.
func wait(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
