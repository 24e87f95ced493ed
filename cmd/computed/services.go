package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/IvanBrykalov/computecore/cache"
	"github.com/IvanBrykalov/computecore/coordinator"
	"github.com/IvanBrykalov/computecore/internal/config"
	"github.com/IvanBrykalov/computecore/internal/httpapi"
	"github.com/IvanBrykalov/computecore/maintenance"
	pmet "github.com/IvanBrykalov/computecore/metrics/prom"
	"github.com/IvanBrykalov/computecore/modules"
	"github.com/IvanBrykalov/computecore/pool"
)

const namespace = "computecore"

// services are the long-lived components, built once per process.
type services struct {
	registry *prometheus.Registry
	pool     *pool.Pool
	cache    cache.Cache[string, any]
	modules  *modules.Manager
	coord    *coordinator.Coordinator
	maint    *maintenance.Scheduler
	logger   *slog.Logger
}

// loadConfig reads the config named by the root flags.
func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return cfg, config.NewLogger(os.Stderr, cfg.LogLevel()), nil
}

func newServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := pool.New(pool.Options{
		MinUnits:     cfg.Pool.MinUnits,
		MaxUnits:     cfg.Pool.MaxUnits,
		MaxQueueSize: cfg.Pool.MaxQueueSize,
		TaskTimeout:  cfg.Pool.TaskTimeout,
		Metrics:      pmet.NewPool(reg, namespace, "pool", nil),
		Logger:       logger.With("component", "pool"),
	})
	if err != nil {
		return nil, fmt.Errorf("build pool: %w", err)
	}

	c := cache.New[string, any](cache.Options[string, any]{
		MaxSize:    cfg.Cache.MaxSize,
		MaxMemory:  cfg.Cache.MaxMemory,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Metrics:    pmet.NewCache(reg, namespace, "cache", nil),
		Logger:     logger.With("component", "cache"),
	})

	related := httpapi.RelatedModules()
	for k, v := range cfg.Modules.Related {
		related[k] = v
	}
	m := modules.New(modules.Options{
		UnloadAfter:      cfg.Modules.UnloadAfter,
		PreloadThreshold: cfg.Modules.PreloadThreshold,
		Related:          related,
		Metrics:          pmet.NewModules(reg, namespace, "modules", nil),
		Logger:           logger.With("component", "modules"),
	})

	s := &services{registry: reg, pool: p, cache: c, modules: m, logger: logger}
	if err := httpapi.RegisterModules(m); err != nil {
		return nil, errors.Join(err, s.close(context.Background()))
	}

	s.coord, err = coordinator.New(coordinator.Options{
		Pool:    p,
		Cache:   c,
		Modules: m,
		Metrics: pmet.NewCoordinator(reg, namespace, "coordinator", nil),
		Logger:  logger.With("component", "coordinator"),
	})
	if err != nil {
		return nil, errors.Join(err, s.close(context.Background()))
	}

	s.maint, err = maintenance.New(logger.With("component", "maintenance"),
		maintenance.CacheCleanup(c, cfg.Cache.CleanupInterval, logger),
		maintenance.ModuleSweep(m, cfg.Modules.SweepInterval),
	)
	if err != nil {
		return nil, errors.Join(err, s.close(context.Background()))
	}
	return s, nil
}

// close stops maintenance, then the pool, then releases modules and cache.
func (s *services) close(ctx context.Context) error {
	var errs []error
	if s.maint != nil {
		errs = append(errs, s.maint.Stop(ctx))
	}
	errs = append(errs,
		s.pool.Terminate(ctx),
		s.modules.Close(),
		s.cache.Close(),
	)
	return errors.Join(errs...)
}
