package postgres

import (
	"context"
	"fmt"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/money"
	"casino-sim-lab/internal/storage"
)

// HourLogStore implements storage.HourLogStore using PostgreSQL.
type HourLogStore struct {
	pool *Pool
}

// NewHourLogStore creates a new HourLogStore.
func NewHourLogStore(pool *Pool) *HourLogStore {
	return &HourLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HourLogStore = (*HourLogStore)(nil)

// Start upserts an in_progress row for hour. Only a failed row is taken over,
// with its attempt counter incremented.
func (s *HourLogStore) Start(ctx context.Context, hour int64, runID string) (*domain.HourExecutionLog, error) {
	if hour < 0 || runID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO hour_execution_log (hour, run_id, status, attempt, started_at)
		VALUES ($1, $2, 'in_progress', 1, NOW())
		ON CONFLICT (hour) DO UPDATE
		SET run_id = EXCLUDED.run_id,
		    status = 'in_progress',
		    attempt = hour_execution_log.attempt + 1,
		    started_at = EXCLUDED.started_at,
		    finished_at = NULL,
		    sessions_triggered = 0,
		    players_processed = 0,
		    total_spins = 0,
		    house_revenue = 0,
		    error_message = ''
		WHERE hour_execution_log.status = 'failed'
		RETURNING attempt, started_at
	`

	l := domain.HourExecutionLog{Hour: hour, RunID: runID, Status: domain.HourStatusInProgress}
	err := s.pool.db(ctx).QueryRow(ctx, query, hour, runID).Scan(&l.Attempt, &l.StartedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("start hour %d: %w", hour, storage.ErrConflict)
		}
		return nil, fmt.Errorf("start hour %d: %w", hour, err)
	}
	return &l, nil
}

// HasInProgress reports whether any hour is still in_progress.
func (s *HourLogStore) HasInProgress(ctx context.Context) (bool, error) {
	var found bool
	query := `SELECT EXISTS (SELECT 1 FROM hour_execution_log WHERE status = 'in_progress')`
	if err := s.pool.db(ctx).QueryRow(ctx, query).Scan(&found); err != nil {
		return false, fmt.Errorf("check in-progress hours: %w", err)
	}
	return found, nil
}

// Complete marks hour completed. Returns ErrNotFound without an in_progress row.
func (s *HourLogStore) Complete(ctx context.Context, hour int64, c domain.HourCompletion) error {
	query := `
		UPDATE hour_execution_log
		SET status = 'completed',
		    finished_at = $2,
		    sessions_triggered = $3,
		    players_processed = $4,
		    total_spins = $5,
		    house_revenue = $6::numeric
		WHERE hour = $1 AND status = 'in_progress'
	`

	tag, err := s.pool.db(ctx).Exec(ctx, query,
		hour, c.FinishedAt, c.SessionsTriggered, c.PlayersProcessed, c.TotalSpins, amount(c.HouseRevenue))
	if err != nil {
		return fmt.Errorf("complete hour %d: %w", hour, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Fail upserts a failed row for hour. A completed row is never overwritten.
func (s *HourLogStore) Fail(ctx context.Context, hour int64, runID, message string) error {
	query := `
		INSERT INTO hour_execution_log (hour, run_id, status, attempt, started_at, finished_at, error_message)
		VALUES ($1, $2, 'failed', 1, NOW(), NOW(), $3)
		ON CONFLICT (hour) DO UPDATE
		SET status = 'failed',
		    finished_at = NOW(),
		    error_message = EXCLUDED.error_message
		WHERE hour_execution_log.status <> 'completed'
	`

	tag, err := s.pool.db(ctx).Exec(ctx, query, hour, runID, message)
	if err != nil {
		return fmt.Errorf("fail hour %d: %w", hour, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail hour %d: %w", hour, storage.ErrConflict)
	}
	return nil
}

// Get retrieves the audit row for hour. Returns ErrNotFound if not exists.
func (s *HourLogStore) Get(ctx context.Context, hour int64) (*domain.HourExecutionLog, error) {
	query := `
		SELECT hour, run_id::text, status, attempt, started_at, finished_at,
		       sessions_triggered, players_processed, total_spins, house_revenue::text, error_message
		FROM hour_execution_log
		WHERE hour = $1
	`

	var l domain.HourExecutionLog
	var status, revenue string
	err := s.pool.db(ctx).QueryRow(ctx, query, hour).Scan(
		&l.Hour, &l.RunID, &status, &l.Attempt, &l.StartedAt, &l.FinishedAt,
		&l.SessionsTriggered, &l.PlayersProcessed, &l.TotalSpins, &revenue, &l.ErrorMessage,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get hour %d: %w", hour, err)
	}

	l.Status = domain.HourStatus(status)
	if l.HouseRevenue, err = money.Parse(revenue); err != nil {
		return nil, fmt.Errorf("hour %d: %w", hour, err)
	}
	return &l, nil
}
