// Package main runs the casino simulation service:
// - HTTP (always): tick trigger, cached state, audit rows, health, metrics
// - Scheduler (optional): cron-driven hour ticks when TICK_CRON is set
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casino-sim-lab/internal/api"
	"casino-sim-lab/internal/app"
	"casino-sim-lab/internal/config"
	"casino-sim-lab/internal/logging"
	"casino-sim-lab/internal/observability"
	"casino-sim-lab/internal/orchestrator"
	"casino-sim-lab/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and seed a fresh world")
	memoryPlayers := flag.Int("memory-players", 1000, "Population size seeded with --use-memory")
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

	if err := run(cfg, logger, *useMemory, *memoryPlayers); err != nil {
		logger.Error("server_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func run(cfg *config.Config, logger *slog.Logger, useMemory bool, memoryPlayers int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := openStores(ctx, cfg, logger, useMemory, memoryPlayers)
	if err != nil {
		return err
	}
	defer cleanup()

	registry, err := app.LoadRegistry(cfg.SlotModelsPath)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	opts := stores.OrchestratorOptions()
	opts.Registry = registry
	opts.Metrics = metrics
	opts.Logger = logger
	opts.MinWorkers = cfg.MinWorkers
	opts.MaxWorkers = cfg.MaxWorkers
	opts.TaskTimeout = cfg.WorkerTaskTimeout
	orch, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	// Warm the caches so reads work before the first tick.
	if err := orch.Refresh(ctx); err != nil {
		logger.Warn("initial_cache_refresh_failed", slog.String("error", err.Error()))
	}

	handler := api.NewHandler(api.HandlerDeps{
		Ticker:      orch,
		HourLogs:    stores.HourLogs,
		WorldCache:  orch.WorldCache(),
		CasinoCache: orch.CasinoCache(),
		Metrics:     metrics.Handler(),
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if cfg.TickCron != "" {
		if sched, err = scheduler.New(cfg.TickCron, orch, logger); err != nil {
			return err
		}
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_server_started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler_stop_timeout", slog.String("error", err.Error()))
		}
	}
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger, useMemory bool, players int) (*app.Stores, func(), error) {
	if !useMemory {
		return app.OpenStores(ctx, cfg, logger)
	}

	stores := app.NewMemoryStores()
	n, err := app.Seed(ctx, stores, app.SeedSpec{
		MasterSeed:      cfg.MasterSeed,
		SimulationStart: time.Now(),
		Players:         players,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("memory_world_seeded", slog.Int("players", n))
	return stores, func() {}, nil
}
