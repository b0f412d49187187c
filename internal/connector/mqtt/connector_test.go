package mqtt

import (
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mihasm/news-globe/internal/logging"
)

type fakeMessage struct {
	topic   string
	id      uint16
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return m.id }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func testConnector(encoding string) *Connector {
	return &Connector{
		cfg:    Config{Encoding: encoding},
		logger: logging.Discard(),
		now:    time.Now,
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Topic: "events"}); err == nil {
		t.Error("expected error when broker_url missing")
	}
	if _, err := New(Config{BrokerURL: "tcp://localhost:1883"}); err == nil {
		t.Error("expected error when topic missing")
	}
	if _, err := New(Config{BrokerURL: "tcp://localhost:1883", Topic: "events", Encoding: "xml"}); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

func TestDecodeJSON(t *testing.T) {
	msg := &fakeMessage{
		topic:   "events/si",
		id:      9,
		payload: []byte(`{"source_id": "evt-9", "title": "Landslide near Bovec", "published_at": "2026-01-17T09:00:00Z"}`),
	}
	rec, err := testConnector("json").decode(msg, 1768640400, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Source != "mqtt" || rec.SourceID != "evt-9" {
		t.Errorf("source/id = %q/%q", rec.Source, rec.SourceID)
	}
	if rec.CollectedAt != 1768640400 {
		t.Errorf("collected_at = %d", rec.CollectedAt)
	}
	if rec.Entities["mqtt_topic"] != "events/si" || rec.Entities["mqtt_message_id"] != "9" {
		t.Errorf("entities = %v", rec.Entities)
	}
}

func TestDecodeMsgpackFallbackSourceID(t *testing.T) {
	payload, err := msgpack.Marshal(wireRecord{Title: "untagged event"})
	if err != nil {
		t.Fatal(err)
	}
	msg := &fakeMessage{topic: "events", id: 3, payload: payload}

	rec, err := testConnector("msgpack").decode(msg, 1768640400, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.SourceID != "events/3/1768640400-2" {
		t.Errorf("source_id = %q", rec.SourceID)
	}
	if rec.Title != "untagged event" {
		t.Errorf("title = %q", rec.Title)
	}
}

func TestDecodeBadPayload(t *testing.T) {
	msg := &fakeMessage{topic: "events", payload: []byte("not json")}
	if _, err := testConnector("json").decode(msg, 1, 1); err == nil {
		t.Error("expected decode error")
	}
}
