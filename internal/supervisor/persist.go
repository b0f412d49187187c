package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// configFile is the on-disk shape of supervisor_config.json.
type configFile struct {
	Schedules map[string]*Schedule `json:"schedules"`
}

// scheduleOverride distinguishes "enabled: false" from an absent key when
// overlaying the config file onto defaults.
type scheduleOverride struct {
	IntervalSeconds int            `json:"interval_seconds"`
	Enabled         *bool          `json:"enabled"`
	Config          map[string]any `json:"config"`
}

// stateFile is the on-disk shape of supervisor_state.json.
type stateFile struct {
	Heartbeat  string                    `json:"heartbeat"`
	Stats      Stats                     `json:"stats"`
	Connectors map[string]map[string]any `json:"connectors"`
}

// loadConfig overlays the config file onto the default schedules. Known
// connectors are updated field by field; unknown names are added whole as
// long as a factory exists for them. Load failure is non-fatal.
func (s *Supervisor) loadConfig() {
	data, err := os.ReadFile(s.cfg.ConfigPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not load supervisor config", "path", s.cfg.ConfigPath, "error", err)
		}
		return
	}

	var cf struct {
		Schedules map[string]*scheduleOverride `json:"schedules"`
	}
	if err := json.Unmarshal(data, &cf); err != nil {
		s.logger.Warn("malformed supervisor config, using defaults", "path", s.cfg.ConfigPath, "error", err)
		return
	}

	for name, override := range cf.Schedules {
		if override == nil {
			continue
		}
		sched, known := s.schedules[name]
		if !known {
			if _, ok := s.cfg.Factories[name]; !ok {
				s.logger.Warn("config names unknown connector", "connector", name)
				continue
			}
			sched = &Schedule{IntervalSeconds: 300, Config: make(map[string]any)}
			s.schedules[name] = sched
		}
		if override.IntervalSeconds > 0 {
			sched.IntervalSeconds = override.IntervalSeconds
		}
		if override.Enabled != nil {
			sched.Enabled = *override.Enabled
		}
		for k, v := range override.Config {
			sched.Config[k] = v
		}
	}
	s.logger.Info("supervisor config loaded", "path", s.cfg.ConfigPath)
}

// saveConfigLocked persists the current schedules. Caller holds s.mu.
func (s *Supervisor) saveConfigLocked() error {
	cf := configFile{Schedules: s.schedules}
	if err := writeJSONAtomic(s.cfg.ConfigPath, cf); err != nil {
		return fmt.Errorf("save supervisor config: %w", err)
	}
	return nil
}

// loadState restores per-connector counters from the previous run.
func (s *Supervisor) loadState() {
	data, err := os.ReadFile(s.cfg.StatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not load supervisor state", "path", s.cfg.StatePath, "error", err)
		}
		return
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		s.logger.Warn("malformed supervisor state, starting fresh", "path", s.cfg.StatePath, "error", err)
		return
	}
	if sf.Connectors != nil {
		s.states = sf.Connectors
	}
	s.logger.Info("supervisor state loaded", "path", s.cfg.StatePath)
}

// saveState persists heartbeat, stats and per-connector state.
func (s *Supervisor) saveState() {
	s.mu.Lock()
	sf := stateFile{
		Heartbeat:  time.Now().UTC().Format(time.RFC3339),
		Stats:      s.stats,
		Connectors: s.states,
	}
	s.mu.Unlock()

	if err := writeJSONAtomic(s.cfg.StatePath, sf); err != nil {
		s.logger.Error("could not save supervisor state", "path", s.cfg.StatePath, "error", err)
	}
}

// writeJSONAtomic writes via a temp file in the target directory plus rename
// so a crash mid-write never leaves a truncated file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
