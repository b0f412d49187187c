// Package kafka consumes ingestion records from a Kafka topic using
// franz-go. Each Fetch is one bounded poll; the consumer group keeps the
// offset between cycles, so a slow supervisor interval just means bigger
// batches, not lost messages.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// SASLConfig holds SASL authentication parameters.
type SASLConfig struct {
	Mechanism string // "plain", "scram-sha-256", "scram-sha-512"
	User      string
	Password  string
}

// Config holds Kafka connector configuration.
type Config struct {
	Brokers  []string
	Topic    string
	Group    string // consumer group, default "newsglobe"
	Encoding string // payload encoding: "json" (default) or "msgpack"
	TLS      bool
	SASL     *SASLConfig

	// PollWait bounds how long one Fetch waits for messages, default 5s.
	PollWait time.Duration

	Logger *slog.Logger
}

// Connector consumes one batch of records per cycle.
type Connector struct {
	cfg    Config
	client *kgo.Client
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Kafka connector and connects its consumer group.
func New(cfg Config) (*Connector, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka connector: brokers required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka connector: topic required")
	}
	if cfg.Group == "" {
		cfg.Group = "newsglobe"
	}
	switch cfg.Encoding {
	case "", "json":
		cfg.Encoding = "json"
	case "msgpack":
	default:
		return nil, fmt.Errorf("kafka connector: unsupported encoding %q (supported: json, msgpack)", cfg.Encoding)
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.Group),
	}
	if cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		}))
	}
	if cfg.SASL != nil {
		mech, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	logger := logging.Default(cfg.Logger).With("component", "connector", "source", "kafka")
	logger.Info("kafka consumer started", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.Group)

	return &Connector{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close commits outstanding offsets and closes the client.
func (c *Connector) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.client.CommitUncommittedOffsets(ctx)
	c.client.Close()
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "kafka" }

// Fetch polls once, bounded by PollWait, and decodes whatever arrived.
// Undecodable payloads are logged and skipped.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollWait)
	defer cancel()

	fetches := c.client.PollFetches(pollCtx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, e := range fetches.Errors() {
		if e.Err == context.DeadlineExceeded || e.Err == context.Canceled {
			continue
		}
		c.logger.Warn("kafka fetch error", "topic", e.Topic, "partition", e.Partition, "error", e.Err)
	}

	collected := c.now().Unix()
	var records []record.Record
	fetches.EachRecord(func(msg *kgo.Record) {
		rec, err := c.decode(msg, collected)
		if err != nil {
			c.logger.Warn("undecodable kafka payload",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			return
		}
		records = append(records, rec)
	})

	c.logger.Debug("kafka poll complete", "records", len(records))
	return records, nil
}

// wireRecord is the payload shape producers publish; field names match the
// ingestion record JSON schema.
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

func (c *Connector) decode(msg *kgo.Record, collected int64) (record.Record, error) {
	var w wireRecord
	var raw any
	switch c.cfg.Encoding {
	case "msgpack":
		if err := msgpack.Unmarshal(msg.Value, &w); err != nil {
			return record.Record{}, err
		}
		raw = &w
	default:
		if err := json.Unmarshal(msg.Value, &w); err != nil {
			return record.Record{}, err
		}
		raw = json.RawMessage(msg.Value)
	}

	sourceID := w.SourceID
	if sourceID == "" {
		// Offsets are stable per partition, so this stays dedup-safe.
		sourceID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if w.CollectedAt <= 0 {
		w.CollectedAt = collected
	}

	entities := w.Entities
	if entities == nil {
		entities = make(map[string]any)
	}
	entities["kafka_topic"] = msg.Topic
	entities["kafka_partition"] = strconv.Itoa(int(msg.Partition))
	entities["kafka_offset"] = strconv.FormatInt(msg.Offset, 10)
	for _, h := range msg.Headers {
		entities["header_"+h.Key] = string(h.Value)
	}

	return record.Record{
		Source:       "kafka",
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

// buildSASLMechanism constructs the appropriate SASL mechanism.
func buildSASLMechanism(cfg *SASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "plain":
		return plain.Auth{
			User: cfg.User,
			Pass: cfg.Password,
		}.AsMechanism(), nil
	case "scram-sha-256":
		return scram.Auth{
			User: cfg.User,
			Pass: cfg.Password,
		}.AsSha256Mechanism(), nil
	case "scram-sha-512":
		return scram.Auth{
			User: cfg.User,
			Pass: cfg.Password,
		}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %q", cfg.Mechanism)
	}
}
