package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTick is the sweep interval of the scheduler loop.
const DefaultTick = time.Second

// Backuper is one schedulable backup job.
type Backuper interface {
	Name() string
	Make() error
}

type job struct {
	b       Backuper
	period  time.Duration
	lastRun time.Time
}

func (j *job) ready(now time.Time) bool {
	return j.lastRun.IsZero() || now.Sub(j.lastRun) > j.period
}

// Manager runs backup jobs on their configured periods. Jobs run one at a
// time in registration order.
type Manager struct {
	tick   time.Duration
	logger *slog.Logger
	jobs   []*job
	names  map[string]struct{}
}

// New creates a manager sweeping at the given interval. A tick of zero or
// less falls back to DefaultTick.
func New(tick time.Duration, logger *slog.Logger) *Manager {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Manager{
		tick:   tick,
		logger: logger,
		names:  make(map[string]struct{}),
	}
}

// Add registers a job. Job names must be unique.
func (m *Manager) Add(b Backuper, period time.Duration) error {
	if _, ok := m.names[b.Name()]; ok {
		return fmt.Errorf("duplicate backup job %s", b.Name())
	}
	m.names[b.Name()] = struct{}{}
	m.jobs = append(m.jobs, &job{b: b, period: period})
	return nil
}

// Run sweeps the jobs until the context is canceled. On every sweep, each
// job whose period has fully passed since its last attempt runs once. A
// failed attempt is logged and counts like a successful one, so a broken
// source is retried on its period instead of every sweep.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down backup manager")
			return nil
		case <-ticker.C:
		}

		for _, j := range m.jobs {
			if ctx.Err() != nil {
				m.logger.Info("shutting down backup manager")
				return nil
			}
			if !j.ready(time.Now()) {
				continue
			}

			m.logger.Info("starting backup", "name", j.b.Name())
			if err := j.b.Make(); err != nil {
				m.logger.Error("backup failed", "name", j.b.Name(), "error", err)
			} else {
				m.logger.Info("completed backup", "name", j.b.Name())
			}
			j.lastRun = time.Now()
		}
	}
}
