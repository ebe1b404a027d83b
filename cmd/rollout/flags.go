package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

var (
	configFile string
	fileConfig Config

	logLevel  string
	logFormat string
	debug     bool

	baseURL      string
	apiKey       string
	model        string
	temperature  float64
	maxTokens    int64
	seed         int64
	rank         int64
	rps          float64
	timeout      time.Duration
	maxRetries   int64
	schedName    string
	maxTurns     int64
	hardMaxTurns int64
	scorerName   string
)

const (
	defaultBaseURL = "http://127.0.0.1:8000/v1"
	defaultModel   = "default"
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// generatorFlags configure the chat-completions backend.
func generatorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "OpenAI-compatible API base URL",
			Value:       defaultBaseURL,
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &baseURL,
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &apiKey,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "served model name",
			Value:       defaultModel,
			Destination: &model,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Aliases:     []string{"temp"},
			Usage:       "sampling temperature",
			Value:       1.0,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Usage:       "max generated tokens per turn (0 = server default)",
			Destination: &maxTokens,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (-1 = unseeded)",
			Value:       42,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "rank",
			Usage:       "worker rank, added to the seed",
			Value:       -1,
			Sources:     cli.EnvVars("RANK"),
			Destination: &rank,
		},
		&cli.FloatFlag{
			Name:        "rps",
			Usage:       "max requests per second (0 = unlimited)",
			Destination: &rps,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "per-request timeout",
			Value:       10 * time.Minute,
			Destination: &timeout,
		},
		&cli.Int64Flag{
			Name:        "max-retries",
			Usage:       "retries on 429/5xx responses",
			Value:       2,
			Destination: &maxRetries,
		},
	}
}

func schedulerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "scheduler",
			Aliases:     []string{"s"},
			Usage:       "multi-turn scheduler name",
			Value:       "math_tip_trick",
			Destination: &schedName,
		},
		&cli.Int64Flag{
			Name:        "max-turns",
			Usage:       "turn bound applied by the scheduler (0 = unbounded)",
			Value:       3,
			Destination: &maxTurns,
		},
		&cli.Int64Flag{
			Name:        "hard-max-turns",
			Usage:       "turn cap enforced by the driver (0 = none)",
			Value:       16,
			Destination: &hardMaxTurns,
		},
		&cli.StringFlag{
			Name:        "scorer",
			Usage:       "accuracy scorer (math, exact)",
			Value:       "math",
			Destination: &scorerName,
		},
	}
}

func ignoreArgsFlag(dst *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "ignore-args-error",
		Usage:       "warn instead of failing on unrecognised positional arguments",
		Destination: dst,
	}
}
