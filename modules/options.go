package modules

import (
	"context"
	"log/slog"
	"time"
)

// Loader builds a module instance. ctx is owned by the Manager and is
// cancelled only by Close.
type Loader func(ctx context.Context) (any, error)

// Cleaner is implemented by instances that hold resources to release when
// they are unloaded.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Metrics exposes module lifecycle observability hooks.
type Metrics interface {
	Load(key string, d time.Duration, err error)
	Unload(key string)
	Resident(loaded int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Load(string, time.Duration, error) {}
func (NoopMetrics) Unload(string)                     {}
func (NoopMetrics) Resident(int)                      {}

var _ Metrics = NoopMetrics{}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Defaults applied by New for zero-valued fields.
const (
	DefaultUnloadAfter        = 30 * time.Minute
	DefaultPreloadThreshold   = 3
	DefaultPreloadConcurrency = 4
)

// Options configures a Manager.
type Options struct {
	// UnloadAfter is the idle time after which SweepIdle unloads an instance.
	UnloadAfter time.Duration
	// PreloadThreshold is the access count that triggers warming the
	// related modules. Negative disables predictive preloading.
	PreloadThreshold int
	// Related lists, per module, the modules usually needed next.
	Related map[string][]string
	// PreloadConcurrency bounds concurrent loads in Preload.
	PreloadConcurrency int

	Metrics Metrics
	Logger  *slog.Logger
	Clock   Clock
}

func (o *Options) applyDefaults() {
	if o.UnloadAfter <= 0 {
		o.UnloadAfter = DefaultUnloadAfter
	}
	if o.PreloadThreshold == 0 {
		o.PreloadThreshold = DefaultPreloadThreshold
	}
	if o.PreloadConcurrency <= 0 {
		o.PreloadConcurrency = DefaultPreloadConcurrency
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}
