package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/api"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/multiturn"
	"github.com/samcharles93/rollout/internal/serving"
	"github.com/samcharles93/rollout/internal/tracestore"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		traceDB     string
		ignoreArgs  bool
	)

	flags := append(generatorFlags(), schedulerFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8090",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.StringFlag{
			Name:        "trace-db",
			Usage:       "store traces in this SQLite database (enables GET /v1/rollouts/:id)",
			Destination: &traceDB,
		},
		ignoreArgsFlag(&ignoreArgs),
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve rollouts over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if err := checkArgs(cmd, ignoreArgs, log); err != nil {
				return err
			}
			applyGeneratorConfig(cmd, fileConfig)
			applySchedulerConfig(cmd, fileConfig)
			applyServeConfig(cmd, fileConfig, &addr, &traceDB)
			logEffectiveConfig(log)

			// Validates the default scheduler and scorer up front.
			_, scorer, err := buildScheduler()
			if err != nil {
				return err
			}

			cfg := api.Config{
				Registry:     multiturn.DefaultRegistry(),
				Generator:    serving.NewClient(servingConfig()),
				Scorer:       scorer,
				Scheduler:    schedName,
				MaxTurns:     int(maxTurns),
				HardMaxTurns: int(hardMaxTurns),
				Logger:       log,
			}
			if traceDB != "" {
				st, err := tracestore.Open(traceDB, log)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.Migrate(ctx); err != nil {
					return err
				}
				cfg.Store = st
			}

			server := api.NewServer(cfg)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.RequestID())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
