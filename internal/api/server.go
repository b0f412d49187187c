// Package api serves the public read side: clusters as GeoJSON, aggregate
// stats, and the destructive reset endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/store"
	"github.com/mihasm/news-globe/internal/web"
)

const (
	defaultLimit = 2000
	maxLimit     = 5000
)

// Config holds API server configuration.
type Config struct {
	// Addr is the address to listen on (e.g. ":8080", "127.0.0.1:0").
	Addr string

	// Store is the item and cluster database.
	Store *store.Store

	// Limiter throttles mutating requests per client IP when non-nil.
	Limiter *web.RateLimiter

	// GeoIP enriches access-log lines when non-nil.
	GeoIP *web.GeoIP

	// Logger for structured logging.
	Logger *slog.Logger
}

// Server exposes clusters and stats over HTTP.
type Server struct {
	store    *store.Store
	addr     string
	limiter  *web.RateLimiter
	geoip    *web.GeoIP
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
	now      func() time.Time
}

// NewServer creates an API server backed by the given store.
func NewServer(cfg Config) *Server {
	return &Server{
		store:   cfg.Store,
		addr:    cfg.Addr,
		limiter: cfg.Limiter,
		geoip:   cfg.GeoIP,
		logger:  logging.Default(cfg.Logger).With("component", "api"),
		now:     time.Now,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clusters", s.handleClusters)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("DELETE /delete-all", s.handleDeleteAll)

	handler := web.Compress(mux)
	if s.limiter != nil {
		limited := func(r *http.Request) bool { return r.Method == http.MethodDelete }
		handler = s.limiter.Middleware(limited)(handler)
	}
	handler = web.CORS(web.AccessLog(s.logger, s.geoip)(handler))

	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.logger.Info("api server starting", "addr", s.listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the listener address. Only valid after Run() has started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// parseSince turns a since query value into a cutoff. Supported forms are
// "<N>h", "<N>d", and ISO-8601; empty means no cutoff (the zero time).
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if n, err := strconv.Atoi(strings.TrimSuffix(s, "h")); err == nil && strings.HasSuffix(s, "h") {
		return now.Add(-time.Duration(n) * time.Hour), nil
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && strings.HasSuffix(s, "d") {
		return now.Add(-time.Duration(n) * 24 * time.Hour), nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("since must be <N>h, <N>d, or ISO-8601")
	}
	return t, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"), s.now())
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	clusters, err := s.store.ClustersSince(r.Context(), since, limit)
	if err != nil {
		s.logger.Error("query clusters failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	fc, err := s.toFeatureCollection(r.Context(), clusters)
	if err != nil {
		s.logger.Error("build feature collection failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	web.WriteJSON(w, http.StatusOK, fc)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("query stats failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]int64{
		"normalized_items_count": st.Items,
		"clustered_items_count":  st.ClusteredItems,
		"clusters_count":         st.Clusters,
	})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	clusters, items, err := s.store.DeleteAll(r.Context())
	if err != nil {
		s.logger.Error("delete all failed", "error", err)
		web.WriteError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.logger.Info("deleted all data", "clusters", clusters, "items", items)
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"status":                   "success",
		"clusters_deleted":         clusters,
		"normalized_items_deleted": items,
	})
}
