package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional config file. Pointer fields distinguish "not set"
// from zero values. Secrets are not read from the file; use the
// environment.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Generator
	BaseURL           string         `yaml:"base_url"`
	Model             string         `yaml:"model"`
	Temperature       *float64       `yaml:"temperature"`
	MaxTokens         *int64         `yaml:"max_tokens"`
	Seed              *int64         `yaml:"seed"`
	RequestsPerSecond *float64       `yaml:"requests_per_second"`
	Timeout           *time.Duration `yaml:"timeout"`
	MaxRetries        *int64         `yaml:"max_retries"`

	// Scheduling
	Scheduler    string `yaml:"scheduler"`
	MaxTurns     *int64 `yaml:"max_turns"`
	HardMaxTurns *int64 `yaml:"hard_max_turns"`
	Scorer       string `yaml:"scorer"`
	Concurrency  *int64 `yaml:"concurrency"`

	// Storage and server
	TraceDB       string `yaml:"trace_db"`
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rollout", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyGeneratorConfig(c *cli.Command, cfg Config) {
	if cfg.BaseURL != "" && !c.IsSet("base-url") {
		baseURL = cfg.BaseURL
	}
	if cfg.Model != "" && !c.IsSet("model") {
		model = cfg.Model
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		temperature = *cfg.Temperature
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		maxTokens = *cfg.MaxTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.RequestsPerSecond != nil && !c.IsSet("rps") {
		rps = *cfg.RequestsPerSecond
	}
	if cfg.Timeout != nil && !c.IsSet("timeout") {
		timeout = *cfg.Timeout
	}
	if cfg.MaxRetries != nil && !c.IsSet("max-retries") {
		maxRetries = *cfg.MaxRetries
	}
}

func applySchedulerConfig(c *cli.Command, cfg Config) {
	if cfg.Scheduler != "" && !c.IsSet("scheduler") {
		schedName = cfg.Scheduler
	}
	if cfg.MaxTurns != nil && !c.IsSet("max-turns") {
		maxTurns = *cfg.MaxTurns
	}
	if cfg.HardMaxTurns != nil && !c.IsSet("hard-max-turns") {
		hardMaxTurns = *cfg.HardMaxTurns
	}
	if cfg.Scorer != "" && !c.IsSet("scorer") {
		scorerName = cfg.Scorer
	}
}

// applyRunConfig applies run-only settings.
func applyRunConfig(c *cli.Command, cfg Config, concurrency *int64, traceDB *string) {
	if cfg.Concurrency != nil && !c.IsSet("concurrency") {
		*concurrency = *cfg.Concurrency
	}
	if cfg.TraceDB != "" && !c.IsSet("trace-db") {
		*traceDB = cfg.TraceDB
	}
}

// applyServeConfig applies serve-only settings.
func applyServeConfig(c *cli.Command, cfg Config, addr, traceDB *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.TraceDB != "" && !c.IsSet("trace-db") {
		*traceDB = cfg.TraceDB
	}
}
