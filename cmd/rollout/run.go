package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/dataset"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/rollout"
	"github.com/samcharles93/rollout/internal/serving"
	"github.com/samcharles93/rollout/internal/tracestore"
)

func runCmd() *cli.Command {
	var (
		input       string
		output      string
		concurrency int64
		limit       int64
		traceDB     string
		ignoreArgs  bool
	)

	flags := append(generatorFlags(), schedulerFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSONL dataset of samples (messages + solution)",
			Required:    true,
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "JSONL file for finished traces (- for stdout)",
			Value:       "-",
			Destination: &output,
		},
		&cli.Int64Flag{
			Name:        "concurrency",
			Aliases:     []string{"j"},
			Usage:       "samples rolled out in parallel (0 = all)",
			Value:       8,
			Destination: &concurrency,
		},
		&cli.Int64Flag{
			Name:        "limit",
			Usage:       "only roll out the first N samples (0 = all)",
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "trace-db",
			Usage:       "also store traces in this SQLite database",
			Destination: &traceDB,
		},
		ignoreArgsFlag(&ignoreArgs),
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Roll out a dataset against a chat-completions server",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if err := checkArgs(cmd, ignoreArgs, log); err != nil {
				return err
			}
			applyGeneratorConfig(cmd, fileConfig)
			applySchedulerConfig(cmd, fileConfig)
			applyRunConfig(cmd, fileConfig, &concurrency, &traceDB)
			logEffectiveConfig(log)

			sched, scorer, err := buildScheduler()
			if err != nil {
				return err
			}

			reqs, err := dataset.ReadFile(input)
			if err != nil {
				return err
			}
			if limit > 0 && int(limit) < len(reqs) {
				reqs = reqs[:limit]
			}
			log.Info("dataset loaded", "path", input, "samples", len(reqs))

			runner := &rollout.Runner{
				Scheduler:     sched,
				SchedulerName: schedName,
				Generator:     serving.NewClient(servingConfig()),
				MaxTurns:      int(hardMaxTurns),
				Logger:        log,
			}
			traces, err := runner.RunBatch(ctx, reqs, int(concurrency))
			if err != nil {
				return fmt.Errorf("rollout: %w", err)
			}

			if err := writeTraces(output, traces); err != nil {
				return fmt.Errorf("write traces: %w", err)
			}
			if traceDB != "" {
				if err := storeTraces(ctx, traceDB, traces, log); err != nil {
					return err
				}
			}

			summary, err := rollout.SummarizeWithScorer(traces, scorer)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			args := []any{
				"samples", summary.Samples,
				"mean_turns", summary.MeanTurns,
				"stddev_turns", summary.StdDevTurns,
				"max_turns", summary.MaxTurns,
				"stop_reasons", summary.StopReasons,
				"prompt_tokens", summary.PromptTokens,
				"completion_tokens", summary.CompletionTokens,
			}
			if summary.Accuracy != nil {
				args = append(args, "accuracy", *summary.Accuracy)
			}
			log.Info("summary", args...)
			return nil
		},
	}
}

func writeTraces(path string, traces []*rollout.Trace) error {
	if path != "-" {
		return dataset.WriteFile(path, traces)
	}
	w := dataset.NewWriter(os.Stdout)
	for _, t := range traces {
		if err := w.Write(t); err != nil {
			return err
		}
	}
	return w.Flush()
}

func storeTraces(ctx context.Context, path string, traces []*rollout.Trace, log logger.Logger) (err error) {
	st, err := tracestore.Open(path, log)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.Close())
	}()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	if err := st.SaveAll(ctx, traces); err != nil {
		return fmt.Errorf("store traces: %w", err)
	}
	log.Info("traces stored", "path", path, "count", len(traces))
	return nil
}
