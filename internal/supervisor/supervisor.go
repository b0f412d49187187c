// Package supervisor runs the connector fleet. Every enabled connector gets
// a worker goroutine that fetches, pushes the batch to the intake queue and
// sleeps its interval; a 10-second supervision cycle respawns dead workers,
// maintains the heartbeat and persists state. Schedules come from defaults
// overlaid with supervisor_config.json.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/logging"
	"github.com/mihasm/news-globe/internal/record"
	"github.com/mihasm/news-globe/internal/schedule"
)

const (
	cycleInterval = 10 * time.Second
	maxErrorSleep = 300 * time.Second
	statsEvery    = 10 // log stats every Nth completed cycle
)

// Pusher delivers record batches to the intake queue. *intake.Client
// implements it.
type Pusher interface {
	Push(ctx context.Context, items []record.Record) (int, error)
}

// Schedule configures one connector's execution.
type Schedule struct {
	IntervalSeconds int            `json:"interval_seconds"`
	Enabled         bool           `json:"enabled"`
	Config          map[string]any `json:"config"`
}

// Config holds supervisor configuration.
type Config struct {
	ConfigPath string // default "supervisor_config.json"
	StatePath  string // default "supervisor_state.json"

	Intake    Pusher
	Factories map[string]connector.Factory
	Logger    *slog.Logger
}

// Supervisor owns the connector workers.
type Supervisor struct {
	cfg       Config
	schedules map[string]*Schedule
	intake    Pusher
	logger    *slog.Logger

	mu      sync.Mutex
	workers map[string]*worker
	stats   Stats
	states  map[string]map[string]any // opaque per-connector state, persisted

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cycles int
}

// Stats counts supervisor-wide activity.
type Stats struct {
	StartTime           time.Time  `json:"start_time"`
	ConnectorsScheduled int        `json:"connectors_scheduled"`
	ConnectorsCompleted int        `json:"connectors_completed"`
	RecordsProcessed    int        `json:"records_processed"`
	Errors              int        `json:"errors"`
	LastHeartbeat       *time.Time `json:"last_heartbeat,omitempty"`
}

// New creates a supervisor with default schedules overlaid by the config
// file. A missing or malformed config file is non-fatal.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Intake == nil {
		return nil, fmt.Errorf("supervisor: intake pusher required")
	}
	if len(cfg.Factories) == 0 {
		return nil, fmt.Errorf("supervisor: no connector factories")
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = "supervisor_config.json"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "supervisor_state.json"
	}

	s := &Supervisor{
		cfg:       cfg,
		schedules: defaultSchedules(),
		intake:    cfg.Intake,
		logger:    logging.Default(cfg.Logger).With("component", "supervisor"),
		workers:   make(map[string]*worker),
		states:    make(map[string]map[string]any),
		stats:     Stats{StartTime: time.Now()},
	}
	s.loadConfig()
	s.loadState()
	return s, nil
}

// defaultSchedules mirrors the deployment we actually run: the keyless HTTP
// sources on, everything needing credentials or local infrastructure off.
func defaultSchedules() map[string]*Schedule {
	return map[string]*Schedule{
		"gdelt": {IntervalSeconds: 300, Enabled: true, Config: map[string]any{
			"query":       "(protest OR riot OR earthquake OR flood OR cyclone OR breaking news OR news OR battle)",
			"max_records": 50,
		}},
		"rss": {IntervalSeconds: 300, Enabled: true, Config: map[string]any{
			"feeds_file":    "rss_feeds.json",
			"max_workers":   8,
			"request_delay": 1.0,
		}},
		"mastodon": {IntervalSeconds: 300, Enabled: true, Config: map[string]any{
			"hashtags": []any{"news", "breaking", "earthquake", "protest"},
		}},
		"telegram": {IntervalSeconds: 60, Enabled: true, Config: map[string]any{
			"watchlist_file": "telegram_watchlist.json",
		}},
		"usgs":      {IntervalSeconds: 300, Enabled: true, Config: map[string]any{"feed": "all_hour"}},
		"gdacs":     {IntervalSeconds: 300, Enabled: true, Config: map[string]any{}},
		"adsb":      {IntervalSeconds: 300, Enabled: false, Config: map[string]any{}},
		"ais":       {IntervalSeconds: 300, Enabled: false, Config: map[string]any{}},
		"kafka":     {IntervalSeconds: 300, Enabled: false, Config: map[string]any{}},
		"mqtt":      {IntervalSeconds: 300, Enabled: false, Config: map[string]any{}},
		"jsonfeed":  {IntervalSeconds: 300, Enabled: false, Config: map[string]any{}},
		"synthetic": {IntervalSeconds: 300, Enabled: false, Config: map[string]any{}},
	}
}

// Register adds the supervision cycle to the shared scheduler and starts the
// workers. The supervisor runs until ctx is cancelled or Stop is called.
func (s *Supervisor) Register(ctx context.Context, sched *schedule.Scheduler) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.startAll()
	return sched.AddEvery("supervisor:cycle", cycleInterval, s.cycle)
}

// Start runs the supervisor standalone with its own ticker, for deployments
// without a shared scheduler. Blocks until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.startAll()

	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-ticker.C:
			s.cycle()
		}
	}
}

// Stop cancels all workers, waits for them, and flushes the final state.
func (s *Supervisor) Stop() {
	s.logger.Info("stopping supervisor")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.saveState()

	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()
	s.logger.Info("supervisor stopped",
		"connectors_completed", stats.ConnectorsCompleted,
		"records_processed", stats.RecordsProcessed,
		"errors", stats.Errors,
	)
}

func (s *Supervisor) startAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sched := range s.schedules {
		if sched.Enabled {
			s.startWorkerLocked(name, sched)
		}
	}
}

// cycle is the supervision pass: heartbeat, respawn dead workers, persist
// state, and log stats every tenth cycle.
func (s *Supervisor) cycle() {
	s.mu.Lock()
	now := time.Now()
	s.stats.LastHeartbeat = &now

	for name, sched := range s.schedules {
		if !sched.Enabled {
			continue
		}
		if w, ok := s.workers[name]; !ok || w.exited() {
			if ok {
				s.logger.Warn("connector worker died, respawning", "connector", name)
			}
			s.startWorkerLocked(name, sched)
		}
	}

	s.cycles++
	logStats := s.cycles%statsEvery == 0
	stats := s.stats
	s.mu.Unlock()

	s.saveState()
	if logStats {
		s.logger.Info("supervisor stats",
			"connectors_scheduled", stats.ConnectorsScheduled,
			"connectors_completed", stats.ConnectorsCompleted,
			"records_processed", stats.RecordsProcessed,
			"errors", stats.Errors,
		)
	}
}

// startWorkerLocked spawns a worker for one connector. Factory errors are
// counted and logged; the next cycle retries.
func (s *Supervisor) startWorkerLocked(name string, sched *Schedule) {
	if s.runCtx == nil || s.runCtx.Err() != nil {
		return
	}
	factory, ok := s.cfg.Factories[name]
	if !ok {
		s.logger.Error("no factory for connector", "connector", name)
		sched.Enabled = false
		return
	}

	conn, err := factory(sched.Config, s.logger.With("connector", name))
	if err != nil {
		s.logger.Error("connector construction failed", "connector", name, "error", err)
		s.stats.Errors++
		return
	}

	w := newWorker(name, conn, sched, s)
	s.workers[name] = w
	s.stats.ConnectorsScheduled++
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run(s.runCtx)
	}()
	s.logger.Info("connector worker started", "connector", name, "interval_s", sched.IntervalSeconds)
}

// EnableConnector flips a connector on or off and persists the change. The
// next supervision cycle starts the worker; disabling takes effect when the
// worker next checks its schedule.
func (s *Supervisor) EnableConnector(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[name]
	if !ok {
		return fmt.Errorf("unknown connector %q", name)
	}
	sched.Enabled = enabled
	return s.saveConfigLocked()
}

// Status reports the supervisor's view of every connector.
func (s *Supervisor) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	connectors := make(map[string]any, len(s.schedules))
	for name, sched := range s.schedules {
		w, ok := s.workers[name]
		connectors[name] = map[string]any{
			"enabled":  sched.Enabled,
			"interval": sched.IntervalSeconds,
			"running":  ok && !w.exited(),
			"state":    s.states[name],
		}
	}
	return map[string]any{
		"running":    s.runCtx != nil && s.runCtx.Err() == nil,
		"stats":      s.stats,
		"connectors": connectors,
	}
}

// recordRun is called by workers after each fetch cycle.
func (s *Supervisor) recordRun(name string, records int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[name]
	if st == nil {
		st = make(map[string]any)
		s.states[name] = st
	}
	st["last_run"] = time.Now().UTC().Format(time.RFC3339)

	if err != nil {
		s.stats.Errors++
		st["last_error"] = err.Error()
		st["errors"] = intState(st["errors"]) + 1
		return
	}
	s.stats.ConnectorsCompleted++
	s.stats.RecordsProcessed += records
	st["runs"] = intState(st["runs"]) + 1
	st["records"] = intState(st["records"]) + records
}

// intState reads a counter back out of loaded JSON state.
func intState(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
