package viewers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig configures the background expiry sweep of a Memory counter.
type SweeperConfig struct {
	// SweepInterval is how often expired counters are evicted.
	// Default: 10 minutes.
	SweepInterval time.Duration
}

// Memory is a single-process Counter.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
}

type entry struct {
	n       int64
	expires time.Time
}

var _ Counter = (*Memory)(nil)

// NewMemory creates an empty counter.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		ttl:     TTL,
		now:     time.Now,
	}
}

func (m *Memory) Add(_ context.Context, eventID string) {
	m.change(eventID, 1)
}

func (m *Memory) Remove(_ context.Context, eventID string) {
	m.change(eventID, -1)
}

func (m *Memory) change(eventID string, delta int64) {
	now := m.now()
	key := Key(eventID)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !now.Before(e.expires) {
		e = &entry{}
		m.entries[key] = e
	}
	e.n = max(0, e.n+delta)
	e.expires = now.Add(m.ttl)
}

func (m *Memory) Count(_ context.Context, eventID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[Key(eventID)]
	if !ok || !m.now().Before(e.expires) {
		return 0
	}
	return e.n
}

// PurgeExpired evicts expired counters and reports how many were removed.
func (m *Memory) PurgeExpired(_ context.Context) (int64, error) {
	now := m.now()
	var n int64
	m.mu.Lock()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			n++
		}
	}
	m.mu.Unlock()
	return n, nil
}

// StartSweeper launches a background goroutine that periodically evicts
// expired counters. Call Stop to shut it down.
func (m *Memory) StartSweeper(cfg *SweeperConfig) {
	if cfg == nil {
		cfg = &SweeperConfig{}
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Minute
	}

	m.sweepStop = make(chan struct{})
	m.sweepDone = make(chan struct{})

	go m.sweepLoop(cfg.SweepInterval)
	slog.Info("viewers: sweeper started", "sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the sweeper goroutine.
func (m *Memory) Stop() {
	if m.sweepStop != nil {
		close(m.sweepStop)
		<-m.sweepDone
		m.sweepStop = nil
		m.sweepDone = nil
	}
}

func (m *Memory) sweepLoop(interval time.Duration) {
	defer close(m.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			if n, _ := m.PurgeExpired(context.Background()); n > 0 {
				slog.Debug("viewers: evicted expired counters", "count", n)
			}
		}
	}
}
