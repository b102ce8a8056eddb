// Package app wires stores, registry and orchestrator for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"casino-sim-lab/internal/config"
	"casino-sim-lab/internal/orchestrator"
	"casino-sim-lab/internal/slot"
	"casino-sim-lab/internal/storage"
	chstore "casino-sim-lab/internal/storage/clickhouse"
	"casino-sim-lab/internal/storage/memory"
	"casino-sim-lab/internal/storage/migrations"
	pgstore "casino-sim-lab/internal/storage/postgres"
)

// Stores holds one backend's store implementations.
type Stores struct {
	Players    storage.PlayerStore
	Sessions   storage.SessionStore
	Rounds     storage.RoundStore
	World      storage.WorldStateStore
	Casino     storage.CasinoStateStore
	HourLogs   storage.HourLogStore
	Transactor storage.Transactor
	Locker     storage.Locker

	// Stats is nil when no analytics sink is configured.
	Stats storage.HourStatsSink
}

// NewMemoryStores creates stores sharing one in-memory database.
func NewMemoryStores() *Stores {
	db := memory.NewDB()
	return &Stores{
		Players:    memory.NewPlayerStore(db),
		Sessions:   memory.NewSessionStore(db),
		Rounds:     memory.NewRoundStore(db),
		World:      memory.NewWorldStateStore(db),
		Casino:     memory.NewCasinoStateStore(db),
		HourLogs:   memory.NewHourLogStore(db),
		Transactor: memory.NewTransactor(db),
		Locker:     memory.NewLocker(),
		Stats:      memory.NewHourStatsStore(),
	}
}

// OpenStores connects to Postgres, and to ClickHouse when configured, and
// applies the embedded migrations. The returned cleanup closes connections.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, func(), error) {
	if err := cfg.RequirePostgres(); err != nil {
		return nil, nil, err
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &Stores{
		Players:    pgstore.NewPlayerStore(pool),
		Sessions:   pgstore.NewSessionStore(pool),
		Rounds:     pgstore.NewRoundStore(pool),
		World:      pgstore.NewWorldStateStore(pool),
		Casino:     pgstore.NewCasinoStateStore(pool),
		HourLogs:   pgstore.NewHourLogStore(pool),
		Transactor: pgstore.NewTransactor(pool),
		Locker:     pgstore.NewLocker(pool, pgstore.TickLockKey),
	}
	cleanup := pool.Close

	if cfg.ClickhouseDSN == "" {
		logger.Info("hour_stats_sink_disabled")
		return stores, cleanup, nil
	}

	conn, err := chstore.NewConnEnsuringDatabase(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		conn.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	stores.Stats = chstore.NewHourStatsStore(conn)

	cleanup = func() {
		if err := conn.Close(); err != nil {
			logger.Warn("clickhouse_close_failed", slog.String("error", err.Error()))
		}
		pool.Close()
	}
	return stores, cleanup, nil
}

// LoadRegistry builds the slot registry from path, or from the embedded
// models when path is empty.
func LoadRegistry(path string) (*slot.Registry, error) {
	if path == "" {
		return slot.BuildDefault()
	}
	configs, err := slot.LoadConfigs(path)
	if err != nil {
		return nil, err
	}
	return slot.Build(configs)
}

// OrchestratorOptions returns options with every store filled in.
func (s *Stores) OrchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		Players:    s.Players,
		Sessions:   s.Sessions,
		Rounds:     s.Rounds,
		World:      s.World,
		Casino:     s.Casino,
		HourLogs:   s.HourLogs,
		Transactor: s.Transactor,
		Locker:     s.Locker,
		StatsSink:  s.Stats,
	}
}
