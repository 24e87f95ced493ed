package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/IvanBrykalov/computecore/coordinator"
	"github.com/IvanBrykalov/computecore/pool"
)

func newBenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Run a synthetic Zipf workload against the coordinator",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Value: 2 * runtime.GOMAXPROCS(0), Usage: "number of caller goroutines"},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "benchmark duration"},
			&cli.IntFlag{Name: "keys", Value: 10_000, Usage: "keyspace size"},
			&cli.Float64Flag{Name: "zipf-s", Value: 1.1, Usage: "Zipf s > 1 (skew)"},
			&cli.Float64Flag{Name: "zipf-v", Value: 1.0, Usage: "Zipf v"},
			&cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano(), Usage: "random seed"},
			&cli.IntFlag{Name: "rounds", Value: 2_000, Usage: "hash rounds per computation"},
			&cli.StringFlag{Name: "http", Usage: "serve Prometheus metrics and pprof at addr (e.g. :6060); empty = disabled"},
		},
		Action: runBench,
	}
}

type benchResult struct {
	total, ok, queueFull, timedOut, failed atomic.Uint64
}

func runBench(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.close(context.Background()) }()

	if addr := cmd.String("http"); addr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("bench: serving metrics and pprof", "addr", addr)
			logger.Warn("bench: http server stopped", "error", http.ListenAndServe(addr, nil))
		}()
	}

	var (
		workersN = max(cmd.Int("workers"), 1)
		keysMax  = uint64(max(cmd.Int("keys"), 1) - 1)
		seedBase = cmd.Int64("seed")
		zipfS    = cmd.Float64("zipf-s")
		zipfV    = cmd.Float64("zipf-v")
		rounds   = cmd.Int("rounds")
	)

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("duration"))
	defer cancel()

	var res benchResult
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfS, zipfV, keysMax)

			for ctx.Err() == nil {
				k := localZipf.Uint64()
				res.total.Add(1)
				_, err := coordinator.Run(ctx, svc.coord, "bench:"+strconv.FormatUint(k, 10), k,
					func(_ context.Context, k uint64) ([32]byte, error) { return hashRounds(k, rounds), nil },
					coordinator.WithKind("bench"))
				res.record(err)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	st := svc.coord.Stats()
	ops := res.total.Load()
	fmt.Printf("workers=%d keys=%d rounds=%d dur=%v seed=%d units=%d..%d queue=%d\n",
		workersN, keysMax+1, rounds, elapsed, seedBase, cfg.Pool.MinUnits, cfg.Pool.MaxUnits, cfg.Pool.MaxQueueSize)
	fmt.Printf("ops=%d (%.0f ops/s)  ok=%d  queue-full=%d  timed-out=%d  failed=%d\n",
		ops, float64(ops)/elapsed.Seconds(), res.ok.Load(), res.queueFull.Load(), res.timedOut.Load(), res.failed.Load())
	fmt.Printf("hits=%d  misses=%d  joined=%d  executed=%d  hit-rate=%.2f%%\n",
		st.Hits, st.Misses, st.Joined, st.Executed, st.HitRate*100)
	fmt.Printf("cache entries=%d bytes=%d evictions=%d  units=%d crashes=%d\n",
		st.Cache.Entries, st.Cache.Bytes, st.Cache.Evictions, st.Pool.Units, st.Pool.Crashes)
	return nil
}

func (r *benchResult) record(err error) {
	var (
		qf *pool.QueueFullError
		to *pool.TimeoutError
	)
	switch {
	case err == nil:
		r.ok.Add(1)
	case errors.As(err, &qf):
		r.queueFull.Add(1)
	case errors.As(err, &to):
		r.timedOut.Add(1)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// end of run
	default:
		r.failed.Add(1)
	}
}

func hashRounds(k uint64, rounds int) [32]byte {
	sum := sha256.Sum256(strconv.AppendUint(nil, k, 10))
	for i := 1; i < rounds; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return sum
}
