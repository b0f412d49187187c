package gazetteer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mihasm/news-globe/internal/logging"
)

const clientTimeout = 10 * time.Second

// Client resolves surfaces against a gazetteer service over HTTP. Transport
// and decode failures are logged and reported as no-candidate; one bad
// lookup never fails a batch.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: clientTimeout},
		logger:  logging.Default(logger).With("component", "gazetteer-client"),
	}
}

type queryResponse struct {
	Key        string          `json:"key"`
	Count      int             `json:"count"`
	Candidates []wireCandidate `json:"candidates"`
}

// wireCandidate tolerates dirty numeric fields in service responses.
type wireCandidate struct {
	GeonameID    int64           `json:"geoname_id"`
	Name         string          `json:"name"`
	Country      string          `json:"country"`
	Admin1       string          `json:"admin1"`
	Admin2       string          `json:"admin2"`
	Lat          json.RawMessage `json:"lat"`
	Lon          json.RawMessage `json:"lon"`
	FeatureClass string          `json:"feature_class"`
	FeatureCode  string          `json:"feature_code"`
	Population   json.RawMessage `json:"population"`
}

func (w wireCandidate) candidate() (Candidate, bool) {
	c := Candidate{
		GeonameID:    w.GeonameID,
		Name:         w.Name,
		Country:      w.Country,
		Admin1:       w.Admin1,
		Admin2:       w.Admin2,
		FeatureClass: w.FeatureClass,
		FeatureCode:  w.FeatureCode,
	}
	var ok bool
	if c.Lat, ok = rawFloat(w.Lat); !ok {
		return Candidate{}, false
	}
	if c.Lon, ok = rawFloat(w.Lon); !ok {
		return Candidate{}, false
	}
	if p, ok := rawFloat(w.Population); ok {
		c.Population = int64(p)
	}
	return c, true
}

// rawFloat accepts a JSON number or a string carrying a float prefix.
func rawFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return floatPrefix(s)
	}
	return 0, false
}

// Resolve queries GET {base}/query?key=<surface>&limit=1 and returns the
// first candidate.
func (c *Client) Resolve(ctx context.Context, surface string) (*Candidate, error) {
	surface = strings.TrimSpace(surface)
	if len(surface) < 2 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("key", surface)
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("gazetteer query failed", "surface", surface, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("gazetteer query rejected", "surface", surface, "status", resp.StatusCode)
		return nil, nil
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warn("gazetteer response malformed", "surface", surface, "error", err)
		return nil, nil
	}
	if len(out.Candidates) == 0 {
		return nil, nil
	}

	cand, ok := out.Candidates[0].candidate()
	if !ok {
		c.logger.Warn("gazetteer candidate malformed", "surface", surface)
		return nil, nil
	}
	return &cand, nil
}
