package pool

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Handler executes one task input. ctx is cancelled only when the pool
// terminates; per-task timeouts do not interrupt a running handler.
type Handler func(ctx context.Context, input any) (any, error)

// Metrics exposes pool-level observability hooks.
type Metrics interface {
	Submitted(kind string)
	Rejected(kind string)
	Completed(kind string, d time.Duration, err error)
	TimedOut(kind string, dispatched bool)
	UnitCrashed()
	Units(total, busy int)
	Queue(length int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Submitted(string)                       {}
func (NoopMetrics) Rejected(string)                        {}
func (NoopMetrics) Completed(string, time.Duration, error) {}
func (NoopMetrics) TimedOut(string, bool)                  {}
func (NoopMetrics) UnitCrashed()                           {}
func (NoopMetrics) Units(int, int)                         {}
func (NoopMetrics) Queue(int)                              {}

var _ Metrics = NoopMetrics{}

// Defaults applied by New for zero-valued fields.
const (
	DefaultMaxUnits     = 4
	DefaultMaxQueueSize = 100
	DefaultTaskTimeout  = 30 * time.Second
)

// Options configures a Pool.
type Options struct {
	// MinUnits units are started eagerly and restored after crashes.
	MinUnits int
	// MaxUnits bounds the number of units (0 => DefaultMaxUnits).
	MaxUnits int
	// MaxQueueSize bounds queued (not yet dispatched) tasks (0 => DefaultMaxQueueSize).
	MaxQueueSize int
	// TaskTimeout bounds how long a caller waits for a task (0 => DefaultTaskTimeout).
	TaskTimeout time.Duration

	// Handlers maps task kinds to executors for requests without Fn.
	Handlers map[string]Handler

	Metrics Metrics
	Logger  *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxUnits == 0 {
		o.MaxUnits = DefaultMaxUnits
	}
	if o.MaxQueueSize == 0 {
		o.MaxQueueSize = DefaultMaxQueueSize
	}
	if o.TaskTimeout == 0 {
		o.TaskTimeout = DefaultTaskTimeout
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

func (o *Options) validate() error {
	var errs []error
	if o.MinUnits < 0 {
		errs = append(errs, errors.New("pool: MinUnits must be >= 0"))
	}
	if o.MaxUnits < 1 {
		errs = append(errs, errors.New("pool: MaxUnits must be >= 1"))
	}
	if o.MinUnits > o.MaxUnits {
		errs = append(errs, errors.New("pool: MinUnits must not exceed MaxUnits"))
	}
	if o.MaxQueueSize < 1 {
		errs = append(errs, errors.New("pool: MaxQueueSize must be >= 1"))
	}
	if o.TaskTimeout < 0 {
		errs = append(errs, errors.New("pool: TaskTimeout must be >= 0"))
	}
	return errors.Join(errs...)
}
