package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/multiturn"
	"github.com/samcharles93/rollout/internal/serving"
)

// effectiveSeed offsets the seed by the worker rank so data-parallel
// workers sample differently. A negative seed leaves sampling unseeded.
func effectiveSeed(seed, rank int64) *int64 {
	if seed < 0 {
		return nil
	}
	s := seed + max(rank, 0)
	return &s
}

func servingConfig() serving.Config {
	temp := temperature
	return serving.Config{
		BaseURL:           baseURL,
		APIKey:            apiKey,
		Model:             model,
		Temperature:       &temp,
		MaxTokens:         int(maxTokens),
		Seed:              effectiveSeed(seed, rank),
		RequestsPerSecond: rps,
		Timeout:           timeout,
		MaxRetries:        int(maxRetries),
	}
}

func redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:3] + "****" + secret[len(secret)-4:]
	}
}

func logEffectiveConfig(log logger.Logger) {
	cfg := servingConfig()
	args := []any{
		"base_url", cfg.BaseURL,
		"api_key", redact(cfg.APIKey),
		"model", cfg.Model,
		"temperature", temperature,
		"max_tokens", cfg.MaxTokens,
		"rps", cfg.RequestsPerSecond,
		"scheduler", schedName,
		"max_turns", maxTurns,
		"hard_max_turns", hardMaxTurns,
		"scorer", scorerName,
	}
	if cfg.Seed != nil {
		args = append(args, "seed", *cfg.Seed)
	}
	log.Info("config", args...)
}

func buildScheduler() (multiturn.Scheduler, accuracy.Scorer, error) {
	if maxTurns < 0 || hardMaxTurns < 0 {
		return nil, nil, fmt.Errorf("max-turns and hard-max-turns must not be negative")
	}
	scorer, err := accuracy.Lookup(scorerName)
	if err != nil {
		return nil, nil, err
	}
	sched, err := multiturn.DefaultRegistry().New(schedName, multiturn.Options{
		MaxTurns: int(maxTurns),
		Scorer:   scorer,
	})
	if err != nil {
		return nil, nil, err
	}
	return sched, scorer, nil
}

// checkArgs rejects leftover positional arguments unless ignore is set.
func checkArgs(cmd *cli.Command, ignore bool, log logger.Logger) error {
	rest := cmd.Args().Slice()
	if len(rest) == 0 {
		return nil
	}
	if !ignore {
		return fmt.Errorf("unrecognised arguments: %v (pass --ignore-args-error to continue)", rest)
	}
	log.Warn("ignoring unrecognised arguments", "args", rest)
	return nil
}
