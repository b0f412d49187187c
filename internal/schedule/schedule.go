// Package schedule wraps gocron with named-job bookkeeping. All periodic
// work (supervision cycles, pipeline passes, cluster maintenance, archive
// cleanup) registers here rather than running its own tickers.
package schedule

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobInfo describes a registered scheduled job for external inspection.
type JobInfo struct {
	ID       string    // unique job ID (gocron UUID)
	Name     string    // human-readable name (e.g. "supervisor:cycle")
	Schedule string    // cron expression or "every <interval>"
	LastRun  time.Time // zero if never run
	NextRun  time.Time // zero if not scheduled
}

// Scheduler is a shared scheduler with named jobs. Names must be unique
// across all subsystems.
type Scheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job // name → job
	schedules map[string]string     // name → schedule description (for ListJobs)
	logger    *slog.Logger
}

// New creates a stopped scheduler. maxConcurrent > 0 caps the number of
// jobs running at once; excess runs wait their turn.
func New(logger *slog.Logger, maxConcurrent int) (*Scheduler, error) {
	var opts []gocron.SchedulerOption
	if maxConcurrent > 0 {
		opts = append(opts, gocron.WithLimitConcurrentJobs(uint(maxConcurrent), gocron.LimitModeWait))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		schedules: make(map[string]string),
		logger:    logger,
	}, nil
}

// AddCron registers a named cron job. The expression uses seconds precision
// when six fields are given. The task function and its arguments are passed
// to gocron.NewTask.
func (s *Scheduler) AddCron(name, cronExpr string, taskFn any, args ...any) error {
	return s.add(name, cronExpr, gocron.CronJob(cronExpr, true), taskFn, args...)
}

// AddEvery registers a named interval job. Runs never overlap: if a run is
// still in progress when the interval elapses, that tick is skipped.
func (s *Scheduler) AddEvery(name string, interval time.Duration, taskFn any, args ...any) error {
	if interval <= 0 {
		return fmt.Errorf("interval for job %s must be positive, got %s", name, interval)
	}
	return s.add(name, "every "+interval.String(), gocron.DurationJob(interval), taskFn, args...)
}

func (s *Scheduler) add(name, desc string, def gocron.JobDefinition, taskFn any, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduled job already exists: %s", name)
	}

	j, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(taskFn, args...),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create scheduled job %s: %w", name, err)
	}

	s.jobs[name] = j
	s.schedules[name] = desc
	s.logger.Info("scheduled job added", "name", name, "schedule", desc)
	return nil
}

// RemoveJob stops and removes a named job. No-op if the job doesn't exist.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return
	}
	if err := s.scheduler.RemoveJob(j.ID()); err != nil {
		s.logger.Warn("failed to remove scheduled job", "name", name, "error", err)
	}
	delete(s.jobs, name)
	delete(s.schedules, name)
	s.logger.Info("scheduled job removed", "name", name)
}

// UpdateEvery replaces a named interval job with a new interval. If the job
// doesn't exist, it is created.
func (s *Scheduler) UpdateEvery(name string, interval time.Duration, taskFn any, args ...any) error {
	s.RemoveJob(name)
	return s.AddEvery(name, interval, taskFn, args...)
}

// HasJob returns true if a job with the given name exists.
func (s *Scheduler) HasJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// ListJobs returns info about all registered jobs.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := JobInfo{
			ID:       j.ID().String(),
			Name:     name,
			Schedule: s.schedules[name],
		}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		infos = append(infos, info)
	}
	return infos
}

// Start begins executing all registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop shuts down the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
