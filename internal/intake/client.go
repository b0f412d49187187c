package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mihasm/news-globe/internal/record"
)

// Health is the response of GET /get/health.
type Health struct {
	Status    string `json:"status"`
	QueueSize int    `json:"raw_items_queue_size"`
}

// Client talks to a remote intake server. The supervisor uses it to push
// batches, the pipeline to drain them.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. "http://localhost:6379").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Push appends a batch of records to the remote queue and returns the queue
// size after the append.
func (c *Client) Push(ctx context.Context, items []record.Record) (int, error) {
	body, err := json.Marshal(map[string]any{"key": "raw_items", "value": items})
	if err != nil {
		return 0, fmt.Errorf("marshal push body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/post", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("push records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("push records: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Status    string `json:"status"`
		QueueSize int    `json:"queue_size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode push response: %w", err)
	}
	if out.Status != "success" {
		return 0, fmt.Errorf("push records: status %q", out.Status)
	}
	return out.QueueSize, nil
}

// Drain fetches and clears the remote queue. Elements come back raw so the
// pipeline can count individually malformed records instead of rejecting the
// whole batch.
func (c *Client) Drain(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get/raw_items", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drain queue: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		RawItems []json.RawMessage `json:"raw_items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode drain response: %w", err)
	}
	return out.RawItems, nil
}

// Health fetches the remote queue health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get/health", nil)
	if err != nil {
		return Health{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("fetch health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("fetch health: unexpected status %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health response: %w", err)
	}
	return h, nil
}
