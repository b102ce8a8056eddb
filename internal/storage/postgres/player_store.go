package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

const playerColumns = "id, archetype, balance::text, lifetime_pnl::text, status, dna, created_at"

// PlayerStore implements storage.PlayerStore using PostgreSQL.
type PlayerStore struct {
	pool *Pool
}

// NewPlayerStore creates a new PlayerStore.
func NewPlayerStore(pool *Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PlayerStore = (*PlayerStore)(nil)

const insertPlayerSQL = `
	INSERT INTO players (archetype, balance, lifetime_pnl, status, dna, created_at)
	VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6)
	RETURNING id
`

func playerArgs(p *domain.Player) ([]any, error) {
	if p == nil || !p.Archetype.Valid() || !p.Status.Valid() || p.Balance.IsNegative() {
		return nil, storage.ErrInvalidInput
	}
	dna, err := domain.MarshalDNA(p.DNA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return []any{string(p.Archetype), amount(p.Balance), amount(p.LifetimePnL), string(p.Status), dna, created}, nil
}

// Insert adds a new player and assigns its ID.
func (s *PlayerStore) Insert(ctx context.Context, p *domain.Player) error {
	args, err := playerArgs(p)
	if err != nil {
		return err
	}

	if err := s.pool.db(ctx).QueryRow(ctx, insertPlayerSQL, args...).Scan(&p.ID); err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

// InsertBulk adds multiple players atomically in one round trip.
func (s *PlayerStore) InsertBulk(ctx context.Context, players []*domain.Player) error {
	if len(players) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range players {
		args, err := playerArgs(p)
		if err != nil {
			return err
		}
		batch.Queue(insertPlayerSQL, args...)
	}

	return s.pool.atomic(ctx, func(ctx context.Context) error {
		br := s.pool.db(ctx).SendBatch(ctx, batch)
		for _, p := range players {
			if err := br.QueryRow().Scan(&p.ID); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert player in bulk: %w", err)
			}
		}
		return br.Close()
	})
}

// GetByID retrieves a player. Returns ErrNotFound if not exists.
func (s *PlayerStore) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(s.pool.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get player by id: %w", err)
	}
	return p, nil
}

// ListByStatus retrieves players with the given status, ordered by ID ASC.
func (s *PlayerStore) ListByStatus(ctx context.Context, status domain.PlayerStatus) ([]*domain.Player, error) {
	query, args, err := sq.Select(playerColumns).
		From("players").
		Where(sq.Eq{"status": string(status)}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list players query: %w", err)
	}

	rows, err := s.pool.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list players by status: %w", err)
	}
	defer rows.Close()

	var result []*domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpdateStatus sets the status of one player. Returns ErrNotFound if not exists.
func (s *PlayerStore) UpdateStatus(ctx context.Context, id int64, status domain.PlayerStatus) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.db(ctx).Exec(ctx, `UPDATE players SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update player status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ApplyUpdates writes every update with a single unnest-driven UPDATE.
func (s *PlayerStore) ApplyUpdates(ctx context.Context, updates []domain.PlayerUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]int64, len(updates))
	balances := make([]string, len(updates))
	statuses := make([]string, len(updates))
	pnls := make([]string, len(updates))
	for i, u := range updates {
		if !u.Status.Valid() || u.Balance.IsNegative() {
			return storage.ErrInvalidInput
		}
		ids[i] = u.PlayerID
		balances[i] = amount(u.Balance)
		statuses[i] = string(u.Status)
		pnls[i] = amount(u.ProfitAndLoss)
	}

	query := `
		UPDATE players AS p
		SET balance = u.balance::numeric,
		    status = u.status,
		    lifetime_pnl = p.lifetime_pnl + u.pnl::numeric
		FROM unnest($1::bigint[], $2::text[], $3::text[], $4::text[]) AS u(id, balance, status, pnl)
		WHERE p.id = u.id
	`

	return s.pool.atomic(ctx, func(ctx context.Context) error {
		tag, err := s.pool.db(ctx).Exec(ctx, query, ids, balances, statuses, pnls)
		if err != nil {
			return fmt.Errorf("apply player updates: %w", err)
		}
		if tag.RowsAffected() != int64(len(updates)) {
			return fmt.Errorf("apply player updates: %w: %d of %d players matched",
				storage.ErrNotFound, tag.RowsAffected(), len(updates))
		}
		return nil
	})
}

// CountByStatus returns the number of players per status.
func (s *PlayerStore) CountByStatus(ctx context.Context) (domain.StatusBreakdown, error) {
	var b domain.StatusBreakdown

	rows, err := s.pool.db(ctx).Query(ctx, `SELECT status, COUNT(*) FROM players GROUP BY status`)
	if err != nil {
		return b, fmt.Errorf("count players by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return b, fmt.Errorf("scan status count: %w", err)
		}
		b.Add(domain.PlayerStatus(status), n)
	}
	return b, rows.Err()
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	var archetype, status, balance, pnl string
	var dna []byte

	if err := row.Scan(&p.ID, &archetype, &balance, &pnl, &status, &dna, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := amounts([]*decimal.Decimal{&p.Balance, &p.LifetimePnL}, []string{balance, pnl}); err != nil {
		return nil, err
	}

	d, err := domain.UnmarshalDNA(dna)
	if err != nil {
		return nil, fmt.Errorf("player %d: %w", p.ID, err)
	}
	p.DNA = d
	p.Archetype = domain.Archetype(archetype)
	p.Status = domain.PlayerStatus(status)
	return &p, nil
}
