// Package sweep runs periodic housekeeping against the backends: purging
// expired event records and expired viewer counters.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of periodic cleanup.
type Task interface {
	Name() string
	// Sweep removes expired entries and reports how many it removed.
	Sweep(ctx context.Context) (int64, error)
}

// Func adapts a purge function to a Task.
func Func(name string, fn func(ctx context.Context) (int64, error)) Task {
	return funcTask{name: name, fn: fn}
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) (int64, error)
}

func (t funcTask) Name() string                             { return t.name }
func (t funcTask) Sweep(ctx context.Context) (int64, error) { return t.fn(ctx) }

// Scheduler runs tasks immediately and then on every tick.
type Scheduler struct {
	tasks    []Task
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for tasks at the given interval.
func NewScheduler(tasks []Task, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:    tasks,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic sweeps. It runs an initial sweep immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sweep (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every task once. A failing task is logged and does not stop
// the others.
func (s *Scheduler) SweepOnce(ctx context.Context) {
	var total int64
	for _, t := range s.tasks {
		n, err := t.Sweep(ctx)
		if err != nil {
			s.logger.Error("sweep failed", "task", t.Name(), "err", err)
			continue
		}
		total += n
		if n > 0 {
			s.logger.Info("sweep removed expired entries", "task", t.Name(), "removed", n)
		}
	}
	s.logger.Debug("sweep completed", "tasks", len(s.tasks), "removed", total)
}
