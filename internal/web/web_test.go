package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]any{"status": "success", "added": 3})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "success" {
		t.Errorf("status field = %v, want success", body["status"])
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "value must be an array")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "value must be an array" {
		t.Errorf("error field = %q, want %q", body["error"], "value must be an array")
	}
}

func TestCORSHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := CORS(inner)
	req := httptest.NewRequest(http.MethodGet, "/clusters", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	h := CORS(inner)
	req := httptest.NewRequest(http.MethodOptions, "/post", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if called {
		t.Error("preflight should not reach the inner handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("expected Allow-Methods header on preflight")
	}
}

// captureHandler records every slog record it receives.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(name string) slog.Handler       { return h }

func (h *captureHandler) attrsOf(i int) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string]any{}
	h.records[i].Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	return out
}

func TestAccessLog(t *testing.T) {
	capture := &captureHandler{}
	logger := slog.New(capture)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"unknown key"}`))
	})

	h := AccessLog(logger, nil)(inner)
	req := httptest.NewRequest(http.MethodGet, "/get/nope", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	capture.mu.Lock()
	n := len(capture.records)
	capture.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 log record, got %d", n)
	}

	attrs := capture.attrsOf(0)
	if attrs["method"] != "GET" {
		t.Errorf("method = %v, want GET", attrs["method"])
	}
	if attrs["path"] != "/get/nope" {
		t.Errorf("path = %v, want /get/nope", attrs["path"])
	}
	if attrs["status"] != int64(http.StatusNotFound) {
		t.Errorf("status = %v, want 404", attrs["status"])
	}
	if attrs["ip"] != "192.0.2.7" {
		t.Errorf("ip = %v, want 192.0.2.7", attrs["ip"])
	}
	if attrs["browser"] != "Chrome" {
		t.Errorf("browser = %v, want Chrome", attrs["browser"])
	}
	if attrs["os"] != "Windows" {
		t.Errorf("os = %v, want Windows", attrs["os"])
	}
	if _, ok := attrs["duration"].(time.Duration); !ok {
		t.Errorf("duration attr missing or wrong type: %v", attrs["duration"])
	}
}

func TestAccessLogDefaultStatus(t *testing.T) {
	capture := &captureHandler{}
	logger := slog.New(capture)

	// Handler that writes without calling WriteHeader.
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	h := AccessLog(logger, nil)(inner)
	req := httptest.NewRequest(http.MethodGet, "/get/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	attrs := capture.attrsOf(0)
	if attrs["status"] != int64(http.StatusOK) {
		t.Errorf("status = %v, want 200", attrs["status"])
	}
	if attrs["bytes"] != int64(2) {
		t.Errorf("bytes = %v, want 2", attrs["bytes"])
	}
}
