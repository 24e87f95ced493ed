package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/computecore/cache"
	"github.com/IvanBrykalov/computecore/modules"
	"github.com/IvanBrykalov/computecore/pool"
)

type fixture struct {
	c       *Coordinator
	pool    *pool.Pool
	cache   cache.Cache[string, any]
	modules *modules.Manager
}

func newFixture(t *testing.T, popt pool.Options) *fixture {
	t.Helper()
	p, err := pool.New(popt)
	if err != nil {
		t.Fatal(err)
	}
	ch := cache.New[string, any](cache.Options[string, any]{MaxSize: 100})
	m := modules.New(modules.Options{PreloadThreshold: -1})
	t.Cleanup(func() {
		_ = m.Close()
		_ = ch.Close()
		_ = p.Terminate(context.Background())
	})

	c, err := New(Options{Pool: p, Cache: ch, Modules: m})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{c: c, pool: p, cache: ch, modules: m}
}

func square(_ context.Context, n int) (int, error) { return n * n, nil }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

type recordingMetrics struct {
	NoopMetrics
	mu     sync.Mutex
	stored map[string]int64
}

func (r *recordingMetrics) Stored(kind string, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored[kind] += bytes
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("missing Pool and Cache must be rejected")
	}
}

// N concurrent misses for one key run the executor once and share its result.
func TestRun_BatchJoin(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1, MaxUnits: 4})

	var calls atomic.Int32
	exec := func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return n + 1, nil
	}

	const N = 16
	results := make([]int, N)
	var g errgroup.Group
	for i := 0; i < N; i++ {
		g.Go(func() (err error) {
			results[i], err = Run(context.Background(), f.c, "inc:41", 41, exec)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("executor must run once, got %d", got)
	}
	for i, r := range results {
		if r != 42 {
			t.Fatalf("caller %d got %d", i, r)
		}
	}
	if st := f.c.Stats(); st.Executed != 1 || st.Requests != N {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRun_CacheHit(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})

	var calls atomic.Int32
	exec := func(ctx context.Context, n int) (int, error) {
		calls.Add(1)
		return square(ctx, n)
	}
	for i := 0; i < 3; i++ {
		v, err := Run(context.Background(), f.c, "sq:7", 7, exec)
		if err != nil || v != 49 {
			t.Fatalf("v=%d err=%v", v, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("want 1 execution, got %d", got)
	}
	st := f.c.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Cache.Entries != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.HitRate < 0.66 || st.HitRate > 0.67 {
		t.Fatalf("hit rate %v", st.HitRate)
	}
}

func TestRun_FailureNotCached(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})

	boom := errors.New("division by zero")
	var calls atomic.Int32
	exec := func(_ context.Context, n int) (int, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return n, nil
	}

	if _, err := Run(context.Background(), f.c, "k", 5, exec); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if f.cache.Len() != 0 {
		t.Fatal("a failure must not be cached")
	}
	if v, err := Run(context.Background(), f.c, "k", 5, exec); err != nil || v != 5 {
		t.Fatalf("retry: v=%d err=%v", v, err)
	}
	if st := f.c.Stats(); st.Failures != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRun_TTL(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})

	var calls atomic.Int32
	exec := func(ctx context.Context, n int) (int, error) {
		calls.Add(1)
		return square(ctx, n)
	}
	if _, err := Run(context.Background(), f.c, "short", 3, exec, WithTTL(20*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := Run(context.Background(), f.c, "short", 3, exec); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expired result must be recomputed, got %d executions", got)
	}
}

func TestRun_WithModule(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})

	type rates struct{ percent int }
	var loads atomic.Int32
	_ = f.modules.Register("rates", func(context.Context) (any, error) {
		loads.Add(1)
		return &rates{percent: 7}, nil
	})

	exec := func(ctx context.Context, amount int) (int, error) {
		m, ok := Module(ctx)
		if !ok {
			return 0, errors.New("module missing")
		}
		return amount * m.(*rates).percent / 100, nil
	}
	v, err := Run(context.Background(), f.c, "tax:1000", 1000, exec, WithModule("rates"), WithKind("tax"))
	if err != nil || v != 70 {
		t.Fatalf("v=%d err=%v", v, err)
	}
	if loads.Load() != 1 || f.c.Stats().Modules.Loaded != 1 {
		t.Fatal("module must be loaded once")
	}

	if _, err := Run(context.Background(), f.c, "x", 1, exec, WithModule("nope")); !errors.Is(err, modules.ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered, got %v", err)
	}
}

func TestRun_ModuleLoadError(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})
	_ = f.modules.Register("broken", func(context.Context) (any, error) { return nil, errors.New("no file") })

	_, err := Run(context.Background(), f.c, "k", 1, square, WithModule("broken"))
	var le *modules.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want *modules.LoadError, got %v", err)
	}
}

func TestRun_TypeMismatch(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})

	if _, err := Run(context.Background(), f.c, "k", 2, square); err != nil {
		t.Fatal(err)
	}
	asString := func(context.Context, int) (string, error) { return "two", nil }
	if _, err := Run(context.Background(), f.c, "k", 2, asString); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("want ErrTypeMismatch, got %v", err)
	}
}

func TestRun_QueueFull(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1, MaxUnits: 1, MaxQueueSize: 1})

	gate := make(chan struct{})
	blocked := func(_ context.Context, n int) (int, error) {
		<-gate
		return n, nil
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := Run(context.Background(), f.c, "a", 1, blocked)
		return err
	})
	eventually(t, func() bool { return f.pool.Stats().Busy == 1 })
	g.Go(func() error {
		_, err := Run(context.Background(), f.c, "b", 2, blocked)
		return err
	})
	eventually(t, func() bool { return f.pool.Stats().Queued == 1 })

	_, err := Run(context.Background(), f.c, "c", 3, blocked)
	var qf *pool.QueueFullError
	if !errors.As(err, &qf) {
		t.Fatalf("want *pool.QueueFullError, got %v", err)
	}

	close(gate)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestRun_Timeout(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1, TaskTimeout: 20 * time.Millisecond})

	slow := func(_ context.Context, n int) (int, error) {
		time.Sleep(100 * time.Millisecond)
		return n, nil
	}
	_, err := Run(context.Background(), f.c, "slow", 1, slow)
	var te *pool.TimeoutError
	if !errors.As(err, &te) || !te.Dispatched {
		t.Fatalf("want dispatched *pool.TimeoutError, got %v", err)
	}
	if f.cache.Len() != 0 {
		t.Fatal("a timed out result must not be cached")
	}
}

// Without batching each miss runs its own task; a caller that stops waiting
// withdraws its queued task.
func TestRun_DisableBatching(t *testing.T) {
	p, err := pool.New(pool.Options{MinUnits: 1, MaxUnits: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Terminate(context.Background()) })
	c, err := New(Options{Pool: p, Cache: cache.New[string, any](cache.Options[string, any]{MaxSize: 10}), DisableBatching: true})
	if err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	var calls atomic.Int32
	exec := func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		<-gate
		return n, nil
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := Run(context.Background(), c, "k", 1, exec)
		return err
	})
	eventually(t, func() bool { return p.Stats().Busy == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := Run(ctx, c, "k", 1, exec); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
	if q := p.Stats().Queued; q != 0 {
		t.Fatalf("abandoned task must be withdrawn, %d queued", q)
	}

	close(gate)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("want 1 execution, got %d", got)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1})
	if h := f.c.Health(); !h.Healthy {
		t.Fatalf("fresh pool must be healthy: %+v", h)
	}
}

// A cached result reports its accounted size once; later hits do not.
func TestRun_StoredSize(t *testing.T) {
	f := newFixture(t, pool.Options{MinUnits: 1, MaxUnits: 1})
	rec := &recordingMetrics{stored: map[string]int64{}}
	c, err := New(Options{Pool: f.pool, Cache: f.cache, Metrics: rec})
	if err != nil {
		t.Fatal(err)
	}

	echo := func(_ context.Context, s string) (string, error) { return s, nil }
	for range 3 {
		if _, err := Run(context.Background(), c, "echo", "abcdef", echo, WithKind("echo")); err != nil {
			t.Fatal(err)
		}
	}

	rec.mu.Lock()
	got := rec.stored["echo"]
	rec.mu.Unlock()
	if got != 6 {
		t.Fatalf("stored bytes for kind echo = %d, want 6", got)
	}
	if st := c.Stats(); st.StoredBytes != 6 || st.Executed != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
