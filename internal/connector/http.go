package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent is sent on every scrape request. Some upstreams reject the Go
// default agent outright.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

// maxResponseBody caps how much of an upstream response is read. A feed
// larger than this is broken upstream, not data.
const maxResponseBody = 32 << 20

// NewHTTPClient returns an HTTP client with explicit connect and total
// timeouts, shared-nothing so each connector instance owns its own pool.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   4,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// StatusError reports a non-2xx upstream response. Connectors that treat
// throttling (429/503) as an empty batch branch on Code.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// GetJSON fetches url and decodes the response body into v. Non-2xx
// responses return a *StatusError.
func GetJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := GetBody(ctx, client, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetBody fetches url and returns the raw response body, capped at
// maxResponseBody. Non-2xx responses return a *StatusError.
func GetBody(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// Clip truncates s to limit runes, appending an ellipsis when it cuts.
func Clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
