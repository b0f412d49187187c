package gazetteer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/web"
)

// ServerConfig holds gazetteer server configuration.
type ServerConfig struct {
	// Addr is the address to listen on. Defaults to ":8787".
	Addr string

	// DB is the resolver to serve. Required.
	DB *DB

	// Logger for structured logging.
	Logger *slog.Logger
}

// Server exposes the SQLite resolver over HTTP under the /query contract the
// pipeline's Client speaks, so the resolver can run in-process or as its own
// service without either side changing.
type Server struct {
	db       *DB
	addr     string
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a gazetteer server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.DB == nil {
		return nil, errors.New("gazetteer server needs a database")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8787"
	}
	return &Server{
		db:     cfg.DB,
		addr:   addr,
		logger: logging.Default(cfg.Logger).With("component", "gazetteer"),
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /query", s.handleQuery)

	s.server = &http.Server{
		Handler:           web.AccessLog(s.logger, nil)(web.Compress(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.logger.Info("gazetteer server starting", "addr", s.listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gazetteer server stopping")
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type serverResponse struct {
	Key        string      `json:"key"`
	Count      int         `json:"count"`
	Candidates []Candidate `json:"candidates"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		web.WriteError(w, http.StatusBadRequest, "missing key parameter")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			web.WriteError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}

	cands, err := s.db.Query(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("gazetteer query failed", "key", key, "error", err)
		web.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if cands == nil {
		cands = []Candidate{}
	}

	web.WriteJSON(w, http.StatusOK, serverResponse{
		Key:        key,
		Count:      len(cands),
		Candidates: cands,
	})
}
