// Package main runs N hour ticks fully in memory and prints one JSON
// summary per hour to stdout. Runs with the same seed print the same output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"

	"casino-sim-lab/internal/app"
	"casino-sim-lab/internal/config"
	"casino-sim-lab/internal/logging"
	"casino-sim-lab/internal/money"
	"casino-sim-lab/internal/orchestrator"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	hours := flag.Int("hours", 24, "Number of hours to simulate")
	players := flag.Int("players", 1000, "Population size")
	seed := flag.String("seed", "", "Master seed, overrides MASTER_SEED")
	workers := flag.Int("workers", 0, "Fixed worker count (0 uses MIN_WORKERS..MAX_WORKERS)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *seed != "" {
		cfg.MasterSeed = *seed
	}
	if *workers > 0 {
		cfg.MinWorkers, cfg.MaxWorkers = *workers, *workers
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(2)
		}
	}

	// stdout carries the summaries only.
	logger := logging.NewConsole(os.Stderr, slog.LevelWarn)

	if err := run(cfg, logger, *hours, *players); err != nil {
		logger.Error("simulate_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, hours, players int) error {
	ctx := context.Background()

	stores := app.NewMemoryStores()
	if _, err := app.Seed(ctx, stores, app.SeedSpec{
		MasterSeed:      cfg.MasterSeed,
		SimulationStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Players:         players,
	}); err != nil {
		return err
	}

	registry, err := app.LoadRegistry(cfg.SlotModelsPath)
	if err != nil {
		return err
	}
	opts := stores.OrchestratorOptions()
	opts.Registry = registry
	opts.Logger = logger
	opts.MinWorkers = cfg.MinWorkers
	opts.MaxWorkers = cfg.MaxWorkers
	opts.TaskTimeout = cfg.WorkerTaskTimeout
	orch, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < hours; i++ {
		summary, err := orch.RunHourTick(ctx)
		if err != nil {
			return fmt.Errorf("hour %d: %w", i, err)
		}
		// Run IDs are random; drop them to keep output reproducible.
		summary.RunID = ""
		if err := enc.Encode(summary); err != nil {
			return err
		}
	}

	casino, err := stores.Casino.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "simulated %d hours, house revenue %s over %d spins\n",
		hours, money.Fixed2(casino.HouseRevenue), casino.TotalSpins)
	return nil
}
