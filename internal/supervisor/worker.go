package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mihasm/news-globe/internal/connector"
)

// worker runs one connector's fetch loop.
type worker struct {
	name  string
	conn  connector.Connector
	sched *Schedule
	sup   *Supervisor
	log   *slog.Logger
	done  chan struct{}
}

func newWorker(name string, conn connector.Connector, sched *Schedule, sup *Supervisor) *worker {
	return &worker{
		name:  name,
		conn:  conn,
		sched: sched,
		sup:   sup,
		log:   sup.logger.With("connector", name),
		done:  make(chan struct{}),
	}
}

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// run fetches, pushes, sleeps, forever. An error sleeps min(interval, 300s)
// instead of the interval; cancellation or a disabled schedule ends the loop.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.close()

	interval := time.Duration(w.sched.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	for ctx.Err() == nil && w.enabled() {
		start := time.Now()
		if err := w.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("connector cycle failed", "error", err)
			w.sup.recordRun(w.name, 0, err)
			if !sleep(ctx, min(interval, maxErrorSleep)) {
				return
			}
			continue
		}
		w.log.Debug("connector cycle complete", "duration", time.Since(start).Round(time.Millisecond))
		if !sleep(ctx, interval) {
			return
		}
	}
}

func (w *worker) cycle(ctx context.Context) error {
	records, err := w.conn.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		queueSize, err := w.sup.intake.Push(ctx, records)
		if err != nil {
			return err
		}
		w.log.Info("batch pushed", "records", len(records), "queue_size", queueSize)
	}
	w.sup.recordRun(w.name, len(records), nil)
	return nil
}

func (w *worker) enabled() bool {
	w.sup.mu.Lock()
	defer w.sup.mu.Unlock()
	return w.sched.Enabled
}

// close releases connector resources for connectors that hold any (file
// watchers, consumer groups).
func (w *worker) close() {
	if c, ok := w.conn.(interface{ Close() }); ok {
		c.Close()
	}
}

// sleep waits for d or cancellation; false means cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
