package coordinator

import (
	"errors"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/computecore/cache"
	"github.com/IvanBrykalov/computecore/modules"
	"github.com/IvanBrykalov/computecore/pool"
)

// DefaultKind labels tasks submitted without WithKind.
const DefaultKind = "compute"

// Metrics exposes request-level observability hooks.
type Metrics interface {
	Hit()
	Miss()
	// Joined is called for each caller served by another caller's computation.
	Joined()
	// Observe reports one computation submitted to the pool.
	Observe(kind string, d time.Duration, err error)
	// Stored reports the accounted size of a result written to the cache.
	Stored(kind string, bytes int64)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                                 {}
func (NoopMetrics) Miss()                                {}
func (NoopMetrics) Joined()                              {}
func (NoopMetrics) Observe(string, time.Duration, error) {}
func (NoopMetrics) Stored(string, int64)                 {}

var _ Metrics = NoopMetrics{}

// Options wires the components a Coordinator drives. Pool and Cache are
// required; Modules is needed only for WithModule. The Coordinator does not
// own them: callers close them on shutdown.
type Options struct {
	Pool    *pool.Pool
	Cache   cache.Cache[string, any]
	Modules *modules.Manager

	// DisableBatching makes every miss submit its own task.
	DisableBatching bool

	Metrics Metrics
	Logger  *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

func (o *Options) validate() error {
	var errs []error
	if o.Pool == nil {
		errs = append(errs, errors.New("coordinator: Pool is required"))
	}
	if o.Cache == nil {
		errs = append(errs, errors.New("coordinator: Cache is required"))
	}
	return errors.Join(errs...)
}

// RunOption customizes a single Run call.
type RunOption func(*runOptions)

type runOptions struct {
	kind     string
	priority int
	ttl      time.Duration
	module   string
}

// WithPriority sets the pool priority; higher runs first.
func WithPriority(p int) RunOption { return func(o *runOptions) { o.priority = p } }

// WithTTL caches the result for ttl instead of the cache's default.
func WithTTL(ttl time.Duration) RunOption { return func(o *runOptions) { o.ttl = ttl } }

// WithModule loads the named module before the computation runs. The
// instance is available to the executor through Module(ctx).
func WithModule(key string) RunOption { return func(o *runOptions) { o.module = key } }

// WithKind labels the task in pool logs and metrics.
func WithKind(kind string) RunOption { return func(o *runOptions) { o.kind = kind } }
