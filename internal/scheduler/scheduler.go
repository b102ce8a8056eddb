// Package scheduler triggers hour ticks on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"casino-sim-lab/internal/orchestrator"
)

// Ticker runs one hour tick. *orchestrator.Orchestrator implements it.
type Ticker interface {
	RunHourTick(ctx context.Context) (*orchestrator.Summary, error)
}

// Scheduler wraps a cron instance with one tick job.
type Scheduler struct {
	cron   *cron.Cron
	ticker Ticker
	logger *slog.Logger
	entry  cron.EntryID
}

// New parses spec and registers the tick job. Specs accept the standard
// five fields and descriptors such as "@every 1m" or "@hourly".
func New(spec string, ticker Ticker, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ticker: ticker,
		logger: logger,
	}

	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("parse tick schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler_started", slog.Time("next_run", s.cron.Entry(s.entry).Next))
}

// Stop prevents new runs and waits for a running tick to finish,
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	summary, err := s.ticker.RunHourTick(context.Background())
	switch {
	case errors.Is(err, orchestrator.ErrTickInProgress):
		s.logger.Info("scheduled_tick_skipped", slog.String("reason", err.Error()))
	case err != nil:
		s.logger.Error("scheduled_tick_failed", slog.String("error", err.Error()))
	default:
		s.logger.Info("scheduled_tick_completed",
			slog.Int64("hour", summary.Hour),
			slog.Int64("total_spins", summary.TotalSpins),
			slog.String("house_revenue", summary.HouseRevenue),
		)
	}
}
