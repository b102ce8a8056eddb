// Package main creates the world state and a player population in Postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"casino-sim-lab/internal/app"
	"casino-sim-lab/internal/config"
	"casino-sim-lab/internal/logging"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	players := flag.Int("players", 1000, "Number of players to generate")
	start := flag.String("start", "", "Simulation start (RFC3339), defaults to now")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("config_load_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LoggingConfig)
	if err != nil {
		slog.Error("logger_init_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	startAt := time.Now()
	if *start != "" {
		if startAt, err = time.Parse(time.RFC3339, *start); err != nil {
			logger.Error("invalid_start", slog.String("value", *start), slog.String("error", err.Error()))
			os.Exit(2)
		}
	}

	ctx := context.Background()
	stores, cleanup, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	n, err := app.Seed(ctx, stores, app.SeedSpec{
		MasterSeed:      cfg.MasterSeed,
		SimulationStart: startAt,
		Players:         *players,
	})
	if errors.Is(err, app.ErrAlreadySeeded) {
		logger.Info("seed_skipped", slog.String("reason", err.Error()))
		return
	}
	if err != nil {
		logger.Error("seed_failed", slog.String("error", err.Error()))
		cleanup()
		os.Exit(1)
	}
	logger.Info("seed_completed", slog.Int("players", n), slog.String("master_seed", cfg.MasterSeed))
}
