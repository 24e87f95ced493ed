// Package maintenance runs the periodic housekeeping jobs outside the
// request path: the cache expiry sweep and the idle module sweep.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"
)

// Default cadences.
const (
	DefaultCleanupInterval = 5 * time.Minute
	DefaultSweepInterval   = 20 * time.Minute
)

// Job is one periodic task. Run must return promptly once ctx is done.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler fires jobs on their interval. Runs of the same job never
// overlap; a tick that arrives while the previous run is busy is skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*scheduled
	logger *slog.Logger

	ctx    context.Context // handed to jobs, cancelled by Stop
	cancel context.CancelFunc
}

type scheduled struct {
	Job
	mu sync.Mutex
}

// New registers jobs on a stopped scheduler. logger may be nil.
func New(logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		jobs:   make(map[string]*scheduled, len(jobs)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		if err := s.add(j); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(j Job) error {
	switch {
	case j.Name == "":
		return errors.New("maintenance: job name is required")
	case j.Run == nil:
		return fmt.Errorf("maintenance: job %q has no Run", j.Name)
	case j.Every <= 0:
		return fmt.Errorf("maintenance: job %q: interval must be > 0, got %s", j.Name, j.Every)
	}
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("maintenance: duplicate job %q", j.Name)
	}
	sj := &scheduled{Job: j}
	if _, err := s.cron.AddFunc("@every "+j.Every.String(), func() { s.fire(sj) }); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", j.Name, err)
	}
	s.jobs[j.Name] = sj
	return nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for name, j := range s.jobs {
		s.logger.Info("maintenance job scheduled", "job", name, "every", j.Every)
	}
}

// Stop prevents further runs, cancels the ctx of running jobs and waits for
// them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the named job synchronously. It returns false for an unknown
// job or one that is already running.
func (s *Scheduler) RunNow(name string) bool {
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	return s.fire(j)
}

func (s *Scheduler) fire(j *scheduled) bool {
	if !j.mu.TryLock() {
		s.logger.Debug("maintenance job still running, tick skipped", "job", j.Name)
		return false
	}
	defer j.mu.Unlock()

	start := time.Now()
	if err := j.Run(s.ctx); err != nil {
		s.logger.Warn("maintenance job failed", "job", j.Name, "duration", time.Since(start), "error", err)
		return true
	}
	s.logger.Debug("maintenance job done", "job", j.Name, "duration", time.Since(start))
	return true
}

// CacheCleanup sweeps expired entries from c.
func CacheCleanup(c interface{ Cleanup() int }, every time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:  "cache-cleanup",
		Every: every,
		Run: func(context.Context) error {
			if n := c.Cleanup(); n > 0 && logger != nil {
				logger.Info("expired cache entries removed", "count", n)
			}
			return nil
		},
	}
}

// ModuleSweep unloads modules idle for longer than their unload timeout.
func ModuleSweep(m interface{ SweepIdle() int }, every time.Duration) Job {
	return Job{
		Name:  "module-sweep",
		Every: every,
		Run: func(context.Context) error {
			m.SweepIdle()
			return nil
		},
	}
}
