package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/version"
)

type startKey struct{}

func main() {
	app := &cli.Command{
		Name:  "rollout",
		Usage: "Multi-turn rollout scheduling for RL training",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/rollout/config.yaml)",
				Destination: &configFile,
			},
		}, loggingFlags()...),
		Before: before,
		After:  after,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			serveCmd(),
			schedulersCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log := logger.NewFromFlags(level, logFormat, os.Stderr)
	start := time.Now()
	log.Info("start", "time", start.Format(time.RFC3339), "version", version.String())

	ctx = logger.WithContext(ctx, log)
	return context.WithValue(ctx, startKey{}, start), nil
}

func after(ctx context.Context, cmd *cli.Command) error {
	start, ok := ctx.Value(startKey{}).(time.Time)
	if !ok {
		return nil
	}
	end := time.Now()
	logger.FromContext(ctx).Info("end", "time", end.Format(time.RFC3339), "elapsed", end.Sub(start).Round(time.Millisecond))
	return nil
}
