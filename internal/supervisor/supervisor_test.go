package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/record"
)

type fakeConnector struct {
	name    string
	batches [][]record.Record
	onFetch func() // runs after each Fetch when set
	mu      sync.Mutex
	calls   int
	err     error
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Fetch(ctx context.Context) ([]record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onFetch != nil {
		defer f.onFetch()
	}
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushed []record.Record
}

func (p *fakePusher) Push(ctx context.Context, items []record.Record) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, items...)
	return len(p.pushed), nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

// disableDefaults turns every stock connector off so tests control exactly
// what runs.
func disableDefaults() map[string]any {
	schedules := make(map[string]any)
	for name := range defaultSchedules() {
		schedules[name] = map[string]any{"enabled": false}
	}
	return schedules
}

func writeConfig(t *testing.T, dir string, schedules map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, "supervisor_config.json")
	data, err := json.Marshal(map[string]any{"schedules": schedules})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWorkerFetchesAndPushes(t *testing.T) {
	dir := t.TempDir()
	schedules := disableDefaults()
	schedules["fake"] = map[string]any{"enabled": true, "interval_seconds": 3600}
	configPath := writeConfig(t, dir, schedules)

	fake := &fakeConnector{
		name: "fake",
		batches: [][]record.Record{{
			{Source: "fake", SourceID: "a", CollectedAt: 1},
			{Source: "fake", SourceID: "b", CollectedAt: 2},
		}},
	}
	pusher := &fakePusher{}
	s, err := New(Config{
		ConfigPath: configPath,
		StatePath:  filepath.Join(dir, "supervisor_state.json"),
		Intake:     pusher,
		Factories: map[string]connector.Factory{
			"fake": func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
				return fake, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pusher.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for pushed records")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()
	if stats.RecordsProcessed != 2 {
		t.Errorf("records_processed = %d, want 2", stats.RecordsProcessed)
	}
	if stats.ConnectorsCompleted < 1 {
		t.Errorf("connectors_completed = %d", stats.ConnectorsCompleted)
	}

	// Final state flush happened on Stop.
	data, err := os.ReadFile(filepath.Join(dir, "supervisor_state.json"))
	if err != nil {
		t.Fatalf("state file: %v", err)
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		t.Fatalf("state json: %v", err)
	}
	if sf.Connectors["fake"] == nil {
		t.Error("no persisted state for fake connector")
	}
}

func TestCycleRespawnsDeadWorker(t *testing.T) {
	dir := t.TempDir()
	schedules := disableDefaults()
	schedules["fake"] = map[string]any{"enabled": true, "interval_seconds": 1}
	configPath := writeConfig(t, dir, schedules)

	pusher := &fakePusher{}

	var (
		s      *Supervisor
		mu     sync.Mutex
		builds int
	)
	factory := func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
		mu.Lock()
		builds++
		n := builds
		mu.Unlock()
		if n == 1 {
			// The first worker delivers one batch and then disables its own
			// schedule, so its loop ends like a crashed worker's would.
			return &fakeConnector{
				name:    "fake",
				batches: [][]record.Record{{{Source: "fake", SourceID: "a", CollectedAt: 1}}},
				onFetch: func() { s.EnableConnector("fake", false) },
			}, nil
		}
		return &fakeConnector{
			name:    "fake",
			batches: [][]record.Record{{{Source: "fake", SourceID: "b", CollectedAt: 2}}},
		}, nil
	}

	s, err := New(Config{
		ConfigPath: configPath,
		StatePath:  filepath.Join(dir, "supervisor_state.json"),
		Intake:     pusher,
		Factories:  map[string]connector.Factory{"fake": factory},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for !cond() {
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for %s", what)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}

	waitFor("first batch", func() bool { return pusher.count() >= 1 })

	s.mu.Lock()
	first := s.workers["fake"]
	s.mu.Unlock()
	waitFor("first worker to exit", first.exited)

	// Re-enable and run one supervision pass; it must notice the dead worker
	// and spawn a fresh one.
	if err := s.EnableConnector("fake", true); err != nil {
		t.Fatalf("EnableConnector: %v", err)
	}
	s.cycle()

	waitFor("pushes to resume", func() bool { return pusher.count() >= 2 })

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if builds != 2 {
		t.Errorf("connector built %d times, want 2 (one per worker)", builds)
	}
}

func TestConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, map[string]any{
		"gdelt":    map[string]any{"interval_seconds": 120, "config": map[string]any{"max_records": 10}},
		"telegram": map[string]any{"enabled": false},
	})

	s, err := New(Config{
		ConfigPath: configPath,
		StatePath:  filepath.Join(dir, "supervisor_state.json"),
		Intake:     &fakePusher{},
		Factories: map[string]connector.Factory{
			"noop": func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
				return nil, errors.New("unused")
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gdelt := s.schedules["gdelt"]
	if gdelt.IntervalSeconds != 120 {
		t.Errorf("gdelt interval = %d, want 120", gdelt.IntervalSeconds)
	}
	if !gdelt.Enabled {
		t.Error("gdelt should stay enabled when the override omits enabled")
	}
	if gdelt.Config["max_records"] != float64(10) {
		t.Errorf("gdelt max_records = %v", gdelt.Config["max_records"])
	}
	// Default config keys survive the overlay.
	if gdelt.Config["query"] == "" {
		t.Error("default query lost in overlay")
	}
	if s.schedules["telegram"].Enabled {
		t.Error("telegram should be disabled")
	}
}

func TestMissingConfigIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{
		ConfigPath: filepath.Join(dir, "nope.json"),
		StatePath:  filepath.Join(dir, "state.json"),
		Intake:     &fakePusher{},
		Factories: map[string]connector.Factory{
			"noop": func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
				return nil, errors.New("unused")
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.schedules["gdelt"].Enabled || s.schedules["gdelt"].IntervalSeconds != 300 {
		t.Error("defaults not applied without config file")
	}
}

func TestEnableConnectorPersists(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "supervisor_config.json")
	s, err := New(Config{
		ConfigPath: configPath,
		StatePath:  filepath.Join(dir, "state.json"),
		Intake:     &fakePusher{},
		Factories: map[string]connector.Factory{
			"noop": func(cfg map[string]any, logger *slog.Logger) (connector.Connector, error) {
				return nil, errors.New("unused")
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.EnableConnector("usgs", false); err != nil {
		t.Fatalf("EnableConnector: %v", err)
	}
	if err := s.EnableConnector("nonexistent", true); err == nil {
		t.Error("expected error for unknown connector")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config file: %v", err)
	}
	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		t.Fatalf("config json: %v", err)
	}
	if cf.Schedules["usgs"].Enabled {
		t.Error("usgs still enabled in persisted config")
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := writeJSONAtomic(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("writeJSONAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil || m["a"] != 1 {
		t.Errorf("round trip failed: %v %v", m, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
