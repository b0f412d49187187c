package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
	"github.com/mihasm/news-globe/internal/web"
)

// maxBodyDefault caps POST bodies. A full supervisor batch of media-heavy
// records stays well under this.
const maxBodyDefault = 100 << 20

// ServerConfig holds intake server configuration.
type ServerConfig struct {
	// Addr is the address to listen on (e.g. ":6379", "127.0.0.1:0").
	Addr string

	// MaxBody caps request body size in bytes. Defaults to 100 MB.
	MaxBody int64

	// Limiter throttles POSTs per client IP when non-nil.
	Limiter *web.RateLimiter

	// GeoIP enriches access-log lines when non-nil.
	GeoIP *web.GeoIP

	// Logger for structured logging.
	Logger *slog.Logger
}

// Server exposes the queue over HTTP. This surface is the only
// inter-component interface: the supervisor POSTs batches, the pipeline
// drains them back out.
type Server struct {
	queue    *Queue
	addr     string
	maxBody  int64
	limiter  *web.RateLimiter
	geoip    *web.GeoIP
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates an intake server for the given queue.
func NewServer(q *Queue, cfg ServerConfig) *Server {
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = maxBodyDefault
	}
	return &Server{
		queue:   q,
		addr:    cfg.Addr,
		maxBody: maxBody,
		limiter: cfg.Limiter,
		geoip:   cfg.GeoIP,
		logger:  logging.Default(cfg.Logger).With("component", "intake"),
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /get/{key}", s.handleGet)
	mux.HandleFunc("POST /post", s.handlePost)

	handler := web.Compress(mux)
	if s.limiter != nil {
		limited := func(r *http.Request) bool { return r.Method == http.MethodPost }
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

	s.logger.Info("intake server starting", "addr", s.listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("intake server stopping")
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

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	switch key := r.PathValue("key"); key {
	case "raw_items":
		web.WriteJSON(w, http.StatusOK, map[string]any{"raw_items": s.queue.Drain()})
	case "tweet_sources":
		web.WriteJSON(w, http.StatusOK, map[string]any{"tweet_sources": s.queue.TweetSources()})
	case "search_queries":
		web.WriteJSON(w, http.StatusOK, map[string]any{"search_queries": s.queue.SearchQueries()})
	case "health":
		web.WriteJSON(w, http.StatusOK, map[string]any{
			"status":               "ok",
			"raw_items_queue_size": s.queue.Size(),
		})
	default:
		web.WriteError(w, http.StatusNotFound, "unknown key: "+key)
	}
}

// postRequest is the body shape of POST /post.
type postRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}

	var pr postRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	switch pr.Key {
	case "raw_items":
		var items []record.Record
		if err := json.Unmarshal(pr.Value, &items); err != nil {
			web.WriteError(w, http.StatusBadRequest, "value must be an array of records")
			return
		}
		size := s.queue.Push(items)
		web.WriteJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"added":      len(items),
			"queue_size": size,
		})
	case "tweet_sources":
		var sources map[string]bool
		if err := json.Unmarshal(pr.Value, &sources); err != nil {
			web.WriteError(w, http.StatusBadRequest, "value must be an object")
			return
		}
		s.queue.SetTweetSources(sources)
		web.WriteJSON(w, http.StatusOK, map[string]any{"status": "success"})
	case "search_queries":
		var queries []string
		if err := json.Unmarshal(pr.Value, &queries); err != nil {
			web.WriteError(w, http.StatusBadRequest, "value must be an array")
			return
		}
		s.queue.SetSearchQueries(queries)
		web.WriteJSON(w, http.StatusOK, map[string]any{"status": "success"})
	default:
		web.WriteError(w, http.StatusBadRequest, "unknown key: "+pr.Key)
	}
}
