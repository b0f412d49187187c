// Package ais takes vessel snapshots from the aisstream.io websocket feed.
// AIS has no request/response API: the connector subscribes with a bounding
// box, collects messages until either a hard timeout or the stream goes
// stable (no new vessels for a short window), and merges position and static
// reports per MMSI into one record each.
package ais

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mihasm/news-globe/internal/geo"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
)

// DefaultURL is the aisstream.io streaming endpoint.
const DefaultURL = "wss://stream.aisstream.io/v0/stream"

const maxMessageSize = 8 << 20

// Config holds AIS connector configuration.
type Config struct {
	BBox   geo.BBox
	APIKey string // defaults to env AISSTREAM_API_KEY

	// Timeout is the hard snapshot duration T. The collect loop also stops
	// once at least max(1, min(5, 0.6*T)) has elapsed and no new MMSI was
	// seen for max(0.75, min(2, 0.2*T)).
	Timeout time.Duration

	URL    string // defaults to DefaultURL; tests point this at a fixture
	Logger *slog.Logger
}

// Connector holds one snapshot subscription's parameters.
type Connector struct {
	bbox    geo.BBox
	apiKey  string
	url     string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an AIS connector. A missing API key is fatal here rather than
// per fetch.
func New(cfg Config) (*Connector, error) {
	b := cfg.BBox
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 ||
		b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return nil, fmt.Errorf("ais connector: invalid bounding box %+v", b)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("AISSTREAM_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ais connector: no API key (set AISSTREAM_API_KEY)")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	return &Connector{
		bbox:    b,
		apiKey:  apiKey,
		url:     url,
		timeout: timeout,
		logger:  logging.Default(cfg.Logger).With("component", "connector", "source", "ais"),
		now:     time.Now,
	}, nil
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "ais" }

// subscription is the aisstream.io subscribe message. Bounding boxes are
// [[minLat, minLon], [maxLat, maxLon]] pairs.
type subscription struct {
	APIKey             string        `json:"APIKey"`
	BoundingBoxes      [][][]float64 `json:"BoundingBoxes"`
	FilterMessageTypes []string      `json:"FilterMessageTypes,omitempty"`
}

// envelope is one streamed message. Both metadata key spellings appear in
// the wild.
type envelope struct {
	MessageType string                     `json:"MessageType"`
	Message     map[string]json.RawMessage `json:"Message"`
	Metadata    map[string]any             `json:"Metadata"`
	MetaData    map[string]any             `json:"MetaData"`
	Error       json.RawMessage            `json:"error"`
}

func (e *envelope) meta() map[string]any {
	if e.Metadata != nil {
		return e.Metadata
	}
	return e.MetaData
}

// vessel is the merged per-MMSI state of a snapshot.
type vessel struct {
	MMSI      int64
	Lat, Lon  *float64
	LastType  string
	FirstSeen time.Time
	LastSeen  time.Time

	// Dynamic and static report fields, filled in as reports arrive.
	Sog, Cog, Heading, RateOfTurn *float64
	NavStatus                     *int
	Name, CallSign, Destination   string
	ShipType, IMO                 *int
	Draught                       *float64
}

// Fetch opens the stream, subscribes and collects one snapshot.
func (c *Connector) Fetch(ctx context.Context) ([]record.Record, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	sub := subscription{
		APIKey: c.apiKey,
		BoundingBoxes: [][][]float64{{
			{c.bbox.MinLat, c.bbox.MinLon},
			{c.bbox.MaxLat, c.bbox.MaxLon},
		}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	vessels, err := c.collect(ctx, conn)
	if err != nil && len(vessels) == 0 {
		return nil, err
	}

	mmsis := make([]int64, 0, len(vessels))
	for mmsi := range vessels {
		mmsis = append(mmsis, mmsi)
	}
	sort.Slice(mmsis, func(i, j int) bool { return mmsis[i] < mmsis[j] })

	collected := c.now().Unix()
	records := make([]record.Record, 0, len(vessels))
	for _, mmsi := range mmsis {
		records = append(records, c.toRecord(vessels[mmsi], collected))
	}
	c.logger.Debug("ais snapshot", "vessels", len(records))
	return records, nil
}

// collect reads the stream until the hard timeout, the stability condition,
// or a stream error. A read error after vessels were seen ends the snapshot
// without failing it.
func (c *Connector) collect(ctx context.Context, conn *websocket.Conn) (map[int64]*vessel, error) {
	minDuration := clampDuration(time.Duration(0.6*float64(c.timeout)), time.Second, 5*time.Second)
	stableWindow := clampDuration(time.Duration(0.2*float64(c.timeout)), 750*time.Millisecond, 2*time.Second)

	started := c.now()
	deadline := started.Add(c.timeout)
	conn.SetReadDeadline(deadline)

	// The reader goroutine owns conn reads; closing conn unblocks it.
	type readResult struct {
		data []byte
		err  error
	}
	msgs := make(chan readResult, 16)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			msgs <- readResult{data, err}
			if err != nil {
				return
			}
		}
	}()

	vessels := make(map[int64]*vessel)
	lastNew := started
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		now := c.now()
		if now.Sub(started) >= c.timeout {
			return vessels, nil
		}
		if now.Sub(started) >= minDuration && now.Sub(lastNew) >= stableWindow {
			return vessels, nil
		}

		select {
		case <-ctx.Done():
			return vessels, ctx.Err()
		case <-ticker.C:
		case res := <-msgs:
			if res.err != nil {
				if len(vessels) > 0 {
					return vessels, nil
				}
				return vessels, fmt.Errorf("ais stream: %w", res.err)
			}
			var env envelope
			if err := json.Unmarshal(res.data, &env); err != nil {
				continue
			}
			if len(env.Error) > 0 {
				return vessels, fmt.Errorf("ais stream error: %s", env.Error)
			}
			if isNew, ok := c.merge(vessels, &env); ok && isNew {
				lastNew = c.now()
			}
		}
	}
}

// merge folds one message into the vessel map. The second return reports
// whether the message introduced a new MMSI.
func (c *Connector) merge(vessels map[int64]*vessel, env *envelope) (isNew bool, ok bool) {
	body := make(map[string]any)
	if raw, found := env.Message[env.MessageType]; found {
		if err := json.Unmarshal(raw, &body); err != nil {
			return false, false
		}
	}

	mmsi := numInt64(body["UserID"])
	if mmsi == nil {
		return false, false
	}

	now := c.now()
	v := vessels[*mmsi]
	if v == nil {
		v = &vessel{MMSI: *mmsi, FirstSeen: now}
		vessels[*mmsi] = v
		isNew = true
	}
	v.LastSeen = now
	v.LastType = env.MessageType

	meta := env.meta()
	if lat, lon := numFloat(meta["Latitude"]), numFloat(meta["Longitude"]); lat != nil && lon != nil {
		v.Lat, v.Lon = lat, lon
	}

	if f := numFloat(body["Sog"]); f != nil {
		v.Sog = f
	}
	if f := numFloat(body["Cog"]); f != nil {
		v.Cog = f
	}
	if f := numFloat(body["Heading"]); f != nil {
		v.Heading = f
	}
	if f := numFloat(body["RateOfTurn"]); f != nil {
		v.RateOfTurn = f
	}
	if n := numInt(body["NavigationalStatus"]); n != nil {
		v.NavStatus = n
	}
	if s, _ := body["Name"].(string); s != "" {
		v.Name = trimShipField(s)
	}
	if s, _ := body["CallSign"].(string); s != "" {
		v.CallSign = trimShipField(s)
	}
	if s, _ := body["Destination"].(string); s != "" {
		v.Destination = trimShipField(s)
	}
	if n := numInt(body["Type"]); n != nil {
		v.ShipType = n
	}
	if n := numInt(body["ImoNumber"]); n != nil {
		v.IMO = n
	}
	if f := numFloat(body["MaximumStaticDraught"]); f != nil {
		v.Draught = f
	}
	return isNew, true
}

func (c *Connector) toRecord(v *vessel, collected int64) record.Record {
	id := strconv.FormatInt(v.MMSI, 10)
	title := "Vessel " + id
	if v.Name != "" {
		title = "Vessel " + v.Name
	}

	entities := map[string]any{
		"mmsi":         v.MMSI,
		"message_type": v.LastType,
	}
	if v.Name != "" {
		entities["name"] = v.Name
	}
	if v.CallSign != "" {
		entities["callsign"] = v.CallSign
	}
	if v.Destination != "" {
		entities["destination"] = v.Destination
	}
	if v.Sog != nil {
		entities["sog_knots"] = *v.Sog
	}
	if v.Cog != nil {
		entities["cog_deg"] = *v.Cog
	}
	if v.Heading != nil {
		entities["heading_deg"] = *v.Heading
	}
	if v.RateOfTurn != nil {
		entities["rate_of_turn"] = *v.RateOfTurn
	}
	if v.NavStatus != nil {
		entities["nav_status"] = *v.NavStatus
	}
	if v.ShipType != nil {
		entities["ship_type"] = *v.ShipType
	}
	if v.IMO != nil {
		entities["imo"] = *v.IMO
	}
	if v.Draught != nil {
		entities["draught_m"] = *v.Draught
	}

	return record.Record{
		Source:      "ais",
		SourceID:    id,
		CollectedAt: collected,
		Title:       title,
		Author:      v.Name,
		Lat:         v.Lat,
		Lon:         v.Lon,
		Entities:    entities,
		Raw:         v,
	}
}

// trimShipField strips the trailing @-padding AIS static fields carry.
func trimShipField(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '@' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func numFloat(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func numInt(v any) *int {
	if f, ok := v.(float64); ok {
		n := int(f)
		return &n
	}
	return nil
}

func numInt64(v any) *int64 {
	if f, ok := v.(float64); ok {
		n := int64(f)
		return &n
	}
	return nil
}
