package ais

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mihasm/news-globe/internal/geo"
)

var upgrader = websocket.Upgrader{}

func testBox() geo.BBox {
	return geo.BBox{MinLat: 53, MinLon: 3, MaxLat: 56, MaxLon: 9}
}

func streamServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub subscription
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscription: %v", err)
			return
		}
		if sub.APIKey != "test-key" {
			t.Errorf("APIKey = %q", sub.APIKey)
		}
		if len(sub.BoundingBoxes) != 1 || len(sub.BoundingBoxes[0]) != 2 {
			t.Errorf("BoundingBoxes = %v", sub.BoundingBoxes)
		}

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFetchMergesReportsPerVessel(t *testing.T) {
	srv := streamServer(t, []string{
		`{"MessageType": "PositionReport",
		  "MetaData": {"MMSI": 211000001, "Latitude": 54.1, "Longitude": 6.5},
		  "Message": {"PositionReport": {"UserID": 211000001, "Sog": 12.3, "Cog": 184.0, "NavigationalStatus": 0}}}`,
		`{"MessageType": "ShipStaticData",
		  "MetaData": {"MMSI": 211000001},
		  "Message": {"ShipStaticData": {"UserID": 211000001, "Name": "NORDWIND@@@", "CallSign": "DABC", "Type": 70, "Destination": "HAMBURG", "MaximumStaticDraught": 7.2}}}`,
		`{"MessageType": "PositionReport",
		  "MetaData": {"MMSI": 244000002, "Latitude": 53.9, "Longitude": 4.8},
		  "Message": {"PositionReport": {"UserID": 244000002, "Sog": 0.1}}}`,
		`{"MessageType": "PositionReport", "Message": {"PositionReport": {}}}`,
	})
	defer srv.Close()

	c, err := New(Config{
		BBox:    testBox(),
		APIKey:  "test-key",
		Timeout: 3 * time.Second,
		URL:     wsURL(srv),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	records, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Ordered by MMSI.
	rec := records[0]
	if rec.Source != "ais" || rec.SourceID != "211000001" {
		t.Errorf("source/id = %q/%q", rec.Source, rec.SourceID)
	}
	if rec.Lat == nil || *rec.Lat != 54.1 || rec.Lon == nil || *rec.Lon != 6.5 {
		t.Errorf("position = %v/%v", rec.Lat, rec.Lon)
	}
	if rec.Title != "Vessel NORDWIND" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Entities["sog_knots"] != 12.3 || rec.Entities["ship_type"] != 70 {
		t.Errorf("entities = %v", rec.Entities)
	}
	if rec.Entities["destination"] != "HAMBURG" {
		t.Errorf("destination = %v", rec.Entities["destination"])
	}
	if records[1].SourceID != "244000002" {
		t.Errorf("second mmsi = %q", records[1].SourceID)
	}
}

func TestFetchStreamError(t *testing.T) {
	srv := streamServer(t, []string{`{"error": "Api Key Is Not Valid"}`})
	defer srv.Close()

	c, err := New(Config{BBox: testBox(), APIKey: "test-key", Timeout: 2 * time.Second, URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("expected stream error")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("AISSTREAM_API_KEY", "")
	if _, err := New(Config{BBox: testBox()}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestSnapshotWindows(t *testing.T) {
	if got := clampDuration(time.Duration(0.6*float64(10*time.Second)), time.Second, 5*time.Second); got != 5*time.Second {
		t.Errorf("min duration = %v", got)
	}
	if got := clampDuration(time.Duration(0.2*float64(2*time.Second)), 750*time.Millisecond, 2*time.Second); got != 750*time.Millisecond {
		t.Errorf("stable window = %v", got)
	}
}
