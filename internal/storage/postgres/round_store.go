package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// maxBindParams is the PostgreSQL limit on parameters per statement.
const maxBindParams = 65535

// RoundBatchSize is the number of rounds per INSERT statement.
const RoundBatchSize = maxBindParams / domain.RoundColumns

// RoundStore implements storage.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *Pool
}

// NewRoundStore creates a new RoundStore.
func NewRoundStore(pool *Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoundStore = (*RoundStore)(nil)

// InsertBatch appends rounds in multi-row INSERTs of RoundBatchSize rows.
// All batches run in one transaction; a duplicate round_id fails every batch.
func (s *RoundStore) InsertBatch(ctx context.Context, rounds []domain.GameRound) error {
	if len(rounds) == 0 {
		return nil
	}

	return s.pool.atomic(ctx, func(ctx context.Context) error {
		for start := 0; start < len(rounds); start += RoundBatchSize {
			end := min(start+RoundBatchSize, len(rounds))
			if err := s.insert(ctx, rounds[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RoundStore) insert(ctx context.Context, rounds []domain.GameRound) error {
	b := sq.Insert("game_rounds").
		Columns(
			"round_id", "session_id", "player_id", "simulation_hour", "spin_index", "outcome",
			"bet_amount", "multiplier", "payout", "balance_after", "occurred_at",
		).
		PlaceholderFormat(sq.Dollar)

	for _, r := range rounds {
		if r.RoundID == "" {
			return storage.ErrInvalidInput
		}
		b = b.Values(
			r.RoundID, r.SessionID, r.PlayerID, r.SimulationHour, r.SpinIndex, r.Outcome,
			sq.Expr("?::numeric", amount(r.BetAmount)),
			sq.Expr("?::numeric", amount(r.Multiplier)),
			sq.Expr("?::numeric", amount(r.Payout)),
			sq.Expr("?::numeric", amount(r.BalanceAfter)),
			r.OccurredAt,
		)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build round insert: %w", err)
	}

	if _, err := s.pool.db(ctx).Exec(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert rounds: %w", err)
	}
	return nil
}

// CountByHour returns the number of rounds recorded for an hour.
func (s *RoundStore) CountByHour(ctx context.Context, hour int64) (int64, error) {
	var n int64
	err := s.pool.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM game_rounds WHERE simulation_hour = $1`, hour).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rounds by hour: %w", err)
	}
	return n, nil
}

// GetBySession retrieves a session's rounds ordered by hour and spin index.
func (s *RoundStore) GetBySession(ctx context.Context, sessionID int64) ([]domain.GameRound, error) {
	query := `
		SELECT round_id, session_id, player_id, simulation_hour, spin_index, outcome,
		       bet_amount::text, multiplier::text, payout::text, balance_after::text, occurred_at
		FROM game_rounds
		WHERE session_id = $1
		ORDER BY simulation_hour ASC, spin_index ASC
	`

	rows, err := s.pool.db(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get rounds by session: %w", err)
	}
	defer rows.Close()

	var result []domain.GameRound
	for rows.Next() {
		var r domain.GameRound
		var bet, mult, payout, after string
		if err := rows.Scan(&r.RoundID, &r.SessionID, &r.PlayerID, &r.SimulationHour, &r.SpinIndex,
			&r.Outcome, &bet, &mult, &payout, &after, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		dst := []*decimal.Decimal{&r.BetAmount, &r.Multiplier, &r.Payout, &r.BalanceAfter}
		if err := amounts(dst, []string{bet, mult, payout, after}); err != nil {
			return nil, fmt.Errorf("round %s: %w", r.RoundID, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
