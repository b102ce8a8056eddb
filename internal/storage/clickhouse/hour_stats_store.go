package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// HourStatsStore implements storage.HourStatsSink using ClickHouse.
// Rows land in a ReplacingMergeTree keyed by hour, so a retried hour keeps
// only its latest record.
type HourStatsStore struct {
	conn *Conn
	now  func() time.Time
}

// NewHourStatsStore creates a new HourStatsStore.
func NewHourStatsStore(conn *Conn) *HourStatsStore {
	return &HourStatsStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.HourStatsSink = (*HourStatsStore)(nil)

// Record appends one row for the hour.
func (s *HourStatsStore) Record(ctx context.Context, st *domain.HourStats) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO hour_stats`)
	if err != nil {
		return fmt.Errorf("prepare hour stats batch: %w", err)
	}

	err = batch.Append(
		st.Hour,
		st.RunID,
		st.SimulationTime.UTC(),
		uint32(st.SessionsTriggered),
		uint32(st.PlayersProcessed),
		uint64(st.TotalSpins),
		st.TotalWagered,
		st.TotalPayout,
		st.HouseRevenue,
		st.RTP,
		uint8(st.WorkerCount),
		st.DurationMs,
		uint32(st.Breakdown.Active),
		uint32(st.Breakdown.Idle),
		uint32(st.Breakdown.Broke),
		s.now().UTC(),
	)
	if err != nil {
		_ = batch.Abort()
		return fmt.Errorf("append hour stats: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert hour stats: %w", err)
	}
	return nil
}

// Get returns the latest record for hour. Returns ErrNotFound if none.
func (s *HourStatsStore) Get(ctx context.Context, hour int64) (*domain.HourStats, error) {
	query := `
		SELECT hour, run_id, simulation_time, sessions_triggered, players_processed, total_spins,
		       total_wagered, total_payout, house_revenue, rtp, worker_count, duration_ms,
		       active_players, idle_players, broke_players
		FROM hour_stats FINAL
		WHERE hour = ?
	`

	rows, err := s.conn.Query(ctx, query, hour)
	if err != nil {
		return nil, fmt.Errorf("query hour stats: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query hour stats: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var (
		st                       domain.HourStats
		sessions, processed      uint32
		spins                    uint64
		wagered, payout, revenue decimal.Decimal
		workers                  uint8
		active, idle, broke      uint32
	)
	err = rows.Scan(&st.Hour, &st.RunID, &st.SimulationTime, &sessions, &processed, &spins,
		&wagered, &payout, &revenue, &st.RTP, &workers, &st.DurationMs,
		&active, &idle, &broke)
	if err != nil {
		return nil, fmt.Errorf("scan hour stats: %w", err)
	}

	st.SessionsTriggered = int(sessions)
	st.PlayersProcessed = int(processed)
	st.TotalSpins = int64(spins)
	st.TotalWagered, st.TotalPayout, st.HouseRevenue = wagered, payout, revenue
	st.WorkerCount = int(workers)
	st.Breakdown = domain.StatusBreakdown{Active: int(active), Idle: int(idle), Broke: int(broke)}
	return &st, nil
}
