// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"casino-sim-lab/internal/workerpool"
)

// Config holds all settings for the binaries.
type Config struct {
	// Storage
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	ClickhouseDSN string `envconfig:"CLICKHOUSE_DSN"` // optional analytics sink

	// HTTP
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Simulation
	MasterSeed     string `envconfig:"MASTER_SEED" default:"casino-sim"`
	SlotModelsPath string `envconfig:"SLOT_MODELS_PATH"` // empty uses the embedded models

	// Worker pool
	MinWorkers        int           `envconfig:"MIN_WORKERS" default:"1"`
	MaxWorkers        int           `envconfig:"MAX_WORKERS" default:"4"`
	WorkerTaskTimeout time.Duration `envconfig:"WORKER_TASK_TIMEOUT" default:"5m"`

	// Scheduler, empty disables automatic ticks
	TickCron string `envconfig:"TICK_CRON"`

	// Embedded so LOG_* keys are not prefixed.
	LoggingConfig

	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"casino_sim"`
}

// LoggingConfig controls log level and optional file rotation.
type LoggingConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Dir        string `envconfig:"LOG_DIR"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
	Compress   bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

// Load reads envFile if it exists, then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.MinWorkers < 1 || c.MinWorkers > c.MaxWorkers || c.MaxWorkers > workerpool.MaxWorkers {
		return fmt.Errorf("worker bounds must satisfy 1 <= MIN_WORKERS <= MAX_WORKERS <= %d, got %d and %d",
			workerpool.MaxWorkers, c.MinWorkers, c.MaxWorkers)
	}
	if c.WorkerTaskTimeout <= 0 {
		return fmt.Errorf("WORKER_TASK_TIMEOUT must be positive, got %s", c.WorkerTaskTimeout)
	}
	if c.MasterSeed == "" {
		return errors.New("MASTER_SEED must not be empty")
	}
	return nil
}

// RequirePostgres returns an error when no Postgres DSN is configured.
func (c *Config) RequirePostgres() error {
	if c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	return nil
}
