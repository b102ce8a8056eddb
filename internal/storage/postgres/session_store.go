package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/money"
	"casino-sim-lab/internal/storage"
)

const sessionColumns = `id, player_id, started_at, ended_at, initial_balance::text,
	final_balance::text, volatility, simulation_hour`

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Create inserts a new open session and assigns its ID. Returns ErrDuplicateKey
// if the player already has an open session and ErrNotFound for an unknown player.
func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess == nil || !sess.Open() || sess.PlayerID == 0 || sess.InitialBalance.IsNegative() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sessions (player_id, started_at, initial_balance, volatility, simulation_hour)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id
	`

	err := s.pool.db(ctx).QueryRow(ctx, query,
		sess.PlayerID,
		sess.StartedAt,
		amount(sess.InitialBalance),
		string(sess.Volatility),
		sess.SimulationHour,
	).Scan(&sess.ID)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return storage.ErrNotFound
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetOpenByPlayer returns the player's open session. Returns ErrNotFound if none.
func (s *SessionStore) GetOpenByPlayer(ctx context.Context, playerID int64) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE player_id = $1 AND ended_at IS NULL`

	sess, err := scanSession(s.pool.db(ctx).QueryRow(ctx, query, playerID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open session: %w", err)
	}
	return sess, nil
}

// GetByID retrieves a session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	sess, err := scanSession(s.pool.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	return sess, nil
}

// CloseBulk closes open sessions with a single unnest-driven UPDATE.
// Returns ErrConflict if any session is unknown or already closed.
func (s *SessionStore) CloseBulk(ctx context.Context, closes []domain.SessionClose) error {
	if len(closes) == 0 {
		return nil
	}

	ids := make([]int64, len(closes))
	finals := make([]string, len(closes))
	ended := make([]time.Time, len(closes))
	for i, c := range closes {
		ids[i] = c.SessionID
		finals[i] = amount(c.FinalBalance)
		ended[i] = c.EndedAt
	}

	query := `
		UPDATE sessions AS s
		SET final_balance = c.final_balance::numeric,
		    ended_at = c.ended_at
		FROM unnest($1::bigint[], $2::text[], $3::timestamptz[]) AS c(id, final_balance, ended_at)
		WHERE s.id = c.id AND s.ended_at IS NULL
	`

	return s.pool.atomic(ctx, func(ctx context.Context) error {
		tag, err := s.pool.db(ctx).Exec(ctx, query, ids, finals, ended)
		if err != nil {
			return fmt.Errorf("close sessions: %w", err)
		}
		if tag.RowsAffected() != int64(len(closes)) {
			return fmt.Errorf("close sessions: %w: %d of %d sessions were open",
				storage.ErrConflict, tag.RowsAffected(), len(closes))
		}
		return nil
	})
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var sess domain.Session
	var initial, volatility string
	var final *string

	err := row.Scan(&sess.ID, &sess.PlayerID, &sess.StartedAt, &sess.EndedAt,
		&initial, &final, &volatility, &sess.SimulationHour)
	if err != nil {
		return nil, err
	}

	if sess.InitialBalance, err = money.Parse(initial); err != nil {
		return nil, err
	}
	if final != nil {
		d, err := money.Parse(*final)
		if err != nil {
			return nil, err
		}
		sess.FinalBalance = &d
	}
	sess.Volatility = domain.Volatility(volatility)
	return &sess, nil
}
