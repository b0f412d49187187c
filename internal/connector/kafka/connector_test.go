package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mihasm/news-globe/internal/logging"
)

func testConnector(encoding string) *Connector {
	return &Connector{
		cfg:    Config{Encoding: encoding},
		logger: logging.Discard(),
		now:    time.Now,
	}
}

func TestNewRequiresBrokersAndTopic(t *testing.T) {
	if _, err := New(Config{Topic: "events"}); err == nil {
		t.Error("expected error when brokers missing")
	}
	if _, err := New(Config{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Error("expected error when topic missing")
	}
}

func TestNewRejectsUnknownEncoding(t *testing.T) {
	_, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "events", Encoding: "protobuf"})
	if err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

func TestDecodeJSON(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"source_id":    "evt-1",
		"title":        "Flooding in Ljubljana",
		"lat":          46.05,
		"lon":          14.51,
		"collected_at": 1768640400,
	})
	msg := &kgo.Record{
		Topic:     "events",
		Partition: 2,
		Offset:    41,
		Value:     payload,
		Headers:   []kgo.RecordHeader{{Key: "producer", Value: []byte("feeder")}},
	}

	rec, err := testConnector("json").decode(msg, 1768640500)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Source != "kafka" || rec.SourceID != "evt-1" {
		t.Errorf("source/id = %q/%q", rec.Source, rec.SourceID)
	}
	if rec.CollectedAt != 1768640400 {
		t.Errorf("collected_at = %d", rec.CollectedAt)
	}
	if rec.Lat == nil || *rec.Lat != 46.05 {
		t.Errorf("lat = %v", rec.Lat)
	}
	if rec.Entities["kafka_partition"] != "2" || rec.Entities["kafka_offset"] != "41" {
		t.Errorf("entities = %v", rec.Entities)
	}
	if rec.Entities["header_producer"] != "feeder" {
		t.Errorf("header entity = %v", rec.Entities["header_producer"])
	}
}

func TestDecodeMsgpack(t *testing.T) {
	payload, err := msgpack.Marshal(wireRecord{SourceID: "evt-2", Title: "Quake report"})
	if err != nil {
		t.Fatal(err)
	}
	msg := &kgo.Record{Topic: "events", Value: payload}

	rec, err := testConnector("msgpack").decode(msg, 1768640500)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.SourceID != "evt-2" || rec.Title != "Quake report" {
		t.Errorf("decoded = %q/%q", rec.SourceID, rec.Title)
	}
	// No collected_at in the payload: poll time is used.
	if rec.CollectedAt != 1768640500 {
		t.Errorf("collected_at = %d", rec.CollectedAt)
	}
}

func TestDecodeFallbackSourceID(t *testing.T) {
	msg := &kgo.Record{Topic: "events", Partition: 0, Offset: 7, Value: []byte(`{}`)}
	rec, err := testConnector("json").decode(msg, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.SourceID != "events/0/7" {
		t.Errorf("source_id = %q", rec.SourceID)
	}
}

func TestBuildSASLMechanism(t *testing.T) {
	for _, mech := range []string{"plain", "scram-sha-256", "scram-sha-512"} {
		if _, err := buildSASLMechanism(&SASLConfig{Mechanism: mech, User: "u", Password: "p"}); err != nil {
			t.Errorf("%s: %v", mech, err)
		}
	}
	if _, err := buildSASLMechanism(&SASLConfig{Mechanism: "gssapi"}); err == nil {
		t.Error("expected error for unsupported mechanism")
	}
}
