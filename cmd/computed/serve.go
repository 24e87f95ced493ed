package main

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/IvanBrykalov/computecore/internal/httpapi"
)

const drainTimeout = 30 * time.Second

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the coordinator over HTTP",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := newServices(cfg, logger)
			if err != nil {
				return err
			}
			svc.maint.Start()

			srv := httpapi.NewServer(httpapi.Config{
				Addr:        cfg.Server.ListenAddr,
				Coordinator: svc.coord,
				Registry:    svc.registry,
				Logger:      logger.With("component", "http"),
			})
			runErr := srv.Run(ctx)

			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			return errors.Join(runErr, svc.close(drainCtx))
		},
	}
}
