package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IvanBrykalov/computecore/cache"
	"github.com/IvanBrykalov/computecore/internal/singleflight"
	"github.com/IvanBrykalov/computecore/internal/util"
	"github.com/IvanBrykalov/computecore/modules"
	"github.com/IvanBrykalov/computecore/pool"
)

// Coordinator combines a pool, a cache and a module manager. It is safe for
// concurrent use.
type Coordinator struct {
	opt     Options
	flights singleflight.Group[string, any]

	_        util.CacheLinePad
	requests util.Counter
	hits     util.Counter
	misses   util.Counter
	joined   util.Counter
	executed util.Counter
	failures util.Counter
	stored   util.Counter
}

// New validates opt and returns a Coordinator.
func New(opt Options) (*Coordinator, error) {
	opt.applyDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{opt: opt}, nil
}

type moduleKey struct{}

// Module returns the module instance loaded for the running computation by
// WithModule.
func Module(ctx context.Context) (any, bool) {
	v := ctx.Value(moduleKey{})
	return v, v != nil
}

// Run returns the result of exec(input) for key, from the cache when
// possible. Concurrent misses for the same key share one execution unless
// batching is disabled. Errors are the pool's (*pool.QueueFullError,
// *pool.TimeoutError, *pool.UnitFailureError), the module manager's
// (*modules.LoadError, modules.ErrNotRegistered), ErrTypeMismatch, or ctx's.
func Run[In, Out any](ctx context.Context, c *Coordinator, key string, input In, exec func(context.Context, In) (Out, error), opts ...RunOption) (Out, error) {
	var zero Out
	o := runOptions{kind: DefaultKind}
	for _, fn := range opts {
		fn(&o)
	}
	c.requests.Inc()

	var inst any
	if o.module != "" {
		if c.opt.Modules == nil {
			return zero, ErrNoModules
		}
		var err error
		if inst, err = c.opt.Modules.Get(ctx, o.module); err != nil {
			return zero, err
		}
	}

	if v, ok := c.opt.Cache.Get(key); ok {
		c.hits.Inc()
		c.opt.Metrics.Hit()
		return as[Out](key, v)
	}
	c.misses.Inc()
	c.opt.Metrics.Miss()

	req := pool.Request{
		Kind:     o.kind,
		Input:    input,
		Priority: o.priority,
		Fn: func(ctx context.Context, _ any) (any, error) {
			if inst != nil {
				ctx = context.WithValue(ctx, moduleKey{}, inst)
			}
			return exec(ctx, input)
		},
	}

	if c.opt.DisableBatching {
		v, err := c.compute(ctx, key, req, o.ttl)
		if err != nil {
			return zero, err
		}
		return as[Out](key, v)
	}

	v, err, shared := c.flights.Do(ctx, key, func() (any, error) {
		return c.compute(context.Background(), key, req, o.ttl)
	})
	if shared {
		c.joined.Inc()
		c.opt.Metrics.Joined()
		c.opt.Logger.Debug("joined in-flight computation", "key", key, "kind", o.kind)
	}
	if err != nil {
		return zero, err
	}
	return as[Out](key, v)
}

// compute submits req and caches its result. ctx bounds the wait; the pool's
// task timeout bounds the task.
func (c *Coordinator) compute(ctx context.Context, key string, req pool.Request, ttl time.Duration) (any, error) {
	// A computation that finished between our miss and this call already
	// stored its result.
	if v, ok := c.opt.Cache.Peek(key); ok {
		return v, nil
	}

	start := time.Now()
	f, err := c.opt.Pool.Submit(ctx, req)
	if err != nil {
		c.failures.Inc()
		c.opt.Metrics.Observe(req.Kind, time.Since(start), err)
		return nil, err
	}
	v, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		// The caller stopped waiting; withdraw the task if it is still queued.
		c.opt.Pool.Cancel(f.ID())
	}
	d := time.Since(start)
	c.executed.Inc()
	c.opt.Metrics.Observe(req.Kind, d, err)
	if err != nil {
		c.failures.Inc()
		c.opt.Logger.Warn("computation failed", "key", key, "kind", req.Kind, "task_id", f.ID(), "duration", d, "error", err)
		return nil, err
	}

	if ttl > 0 {
		err = c.opt.Cache.SetWithTTL(key, v, ttl)
	} else {
		err = c.opt.Cache.Set(key, v)
	}
	if err == nil {
		if n, ok := c.opt.Cache.SizeOf(key); ok {
			c.stored.Add(uint64(n))
			c.opt.Metrics.Stored(req.Kind, n)
		}
	} else {
		// The result is still good; it is only not cached.
		var ie *cache.IntegrityError
		if errors.As(err, &ie) {
			c.opt.Logger.Warn("result not cached", "key", key, "size", ie.Size, "limit", ie.Limit, "error", err)
		} else {
			c.opt.Logger.Warn("result not cached", "key", key, "error", err)
		}
	}
	return v, nil
}

func as[Out any](key string, v any) (Out, error) {
	var zero Out
	if v == nil {
		return zero, nil
	}
	out, ok := v.(Out)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T, want %T", ErrTypeMismatch, key, v, zero)
	}
	return out, nil
}

// Stats aggregates the coordinator counters with its components' stats.
type Stats struct {
	Requests uint64  `json:"requests"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	Joined   uint64  `json:"joined"`
	Executed uint64  `json:"executed"`
	Failures uint64  `json:"failures"`
	HitRate  float64 `json:"hit_rate"`

	// StoredBytes is the total accounted size of results written to the cache.
	StoredBytes uint64 `json:"stored_bytes"`

	Pool    pool.Stats     `json:"pool"`
	Cache   cache.Stats    `json:"cache"`
	Modules *modules.Stats `json:"modules,omitempty"`
}

// Stats returns a point-in-time snapshot. It has no side effects.
func (c *Coordinator) Stats() Stats {
	s := Stats{
		Requests:    c.requests.Load(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Joined:      c.joined.Load(),
		Executed:    c.executed.Load(),
		Failures:    c.failures.Load(),
		StoredBytes: c.stored.Load(),
		Pool:        c.opt.Pool.Stats(),
		Cache:       c.opt.Cache.Stats(),
	}
	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(lookups)
	}
	if c.opt.Modules != nil {
		ms := c.opt.Modules.Stats()
		s.Modules = &ms
	}
	return s
}

// Health forwards the pool health check.
func (c *Coordinator) Health() pool.Health { return c.opt.Pool.HealthCheck() }
