package main

import (
	"context"
	"testing"

	"github.com/IvanBrykalov/computecore/coordinator"
	"github.com/IvanBrykalov/computecore/internal/config"
	"github.com/IvanBrykalov/computecore/pool"
)

func TestNewServices(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Modules.Related = map[string][]string{"digest/sha256": {"digest/sha512"}}

	svc, err := newServices(cfg, config.NewLogger(testWriter{t}, cfg.LogLevel()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := svc.close(context.Background()); err != nil {
			t.Error(err)
		}
	})

	v, err := coordinator.Run(context.Background(), svc.coord, "k", uint64(7),
		func(_ context.Context, k uint64) ([32]byte, error) { return hashRounds(k, 3), nil })
	if err != nil {
		t.Fatal(err)
	}
	if v != hashRounds(7, 3) {
		t.Fatal("unexpected result")
	}

	st := svc.coord.Stats()
	if st.Pool.MinUnits != cfg.Pool.MinUnits || st.Cache.MaxSize != cfg.Cache.MaxSize {
		t.Fatalf("components not built from config: %+v", st)
	}
	if st.Modules == nil || st.Modules.Registered != 2 {
		t.Fatalf("digest modules not registered: %+v", st.Modules)
	}

	mfs, err := svc.registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "computecore_pool_tasks_submitted_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("pool metrics not registered")
	}
}

func TestBenchResult(t *testing.T) {
	var r benchResult
	r.record(nil)
	r.record(&pool.QueueFullError{Kind: "bench", Limit: 1})
	r.record(&pool.TimeoutError{TaskID: "t"})
	r.record(context.Canceled)
	r.record(pool.ErrClosed)
	if r.ok.Load() != 1 || r.queueFull.Load() != 1 || r.timedOut.Load() != 1 || r.failed.Load() != 1 {
		t.Fatalf("unexpected tally ok=%d qf=%d to=%d failed=%d", r.ok.Load(), r.queueFull.Load(), r.timedOut.Load(), r.failed.Load())
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
