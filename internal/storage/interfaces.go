package storage

import (
	"context"

	"casino-sim-lab/internal/domain"
)

// PlayerStore provides access to players storage.
type PlayerStore interface {
	// Insert adds a new player and assigns its ID.
	Insert(ctx context.Context, p *domain.Player) error

	// InsertBulk adds multiple players atomically and assigns their IDs in order.
	InsertBulk(ctx context.Context, players []*domain.Player) error

	// GetByID retrieves a player. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Player, error)

	// ListByStatus retrieves players with the given status, ordered by ID ASC.
	ListByStatus(ctx context.Context, status domain.PlayerStatus) ([]*domain.Player, error)

	// UpdateStatus sets the status of one player. Returns ErrNotFound if not exists.
	UpdateStatus(ctx context.Context, id int64, status domain.PlayerStatus) error

	// ApplyUpdates writes balances, statuses and lifetime PnL deltas in one statement.
	ApplyUpdates(ctx context.Context, updates []domain.PlayerUpdate) error

	// CountByStatus returns the number of players per status.
	CountByStatus(ctx context.Context) (domain.StatusBreakdown, error)
}

// SessionStore provides access to sessions storage.
type SessionStore interface {
	// Create inserts a new open session and assigns its ID.
	Create(ctx context.Context, s *domain.Session) error

	// GetOpenByPlayer returns the player's open session. Returns ErrNotFound if none.
	GetOpenByPlayer(ctx context.Context, playerID int64) (*domain.Session, error)

	// GetByID retrieves a session. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Session, error)

	// CloseBulk closes sessions with their final balances in one statement.
	CloseBulk(ctx context.Context, closes []domain.SessionClose) error
}

// RoundStore provides access to game_rounds storage. Rounds are append-only.
type RoundStore interface {
	// InsertBatch appends rounds, splitting into statements that stay under
	// the bind-parameter ceiling. Returns ErrDuplicateKey on a repeated round_id.
	InsertBatch(ctx context.Context, rounds []domain.GameRound) error

	// CountByHour returns the number of rounds recorded for an hour.
	CountByHour(ctx context.Context, hour int64) (int64, error)

	// GetBySession retrieves a session's rounds ordered by hour and spin index.
	GetBySession(ctx context.Context, sessionID int64) ([]domain.GameRound, error)
}

// WorldStateStore provides access to the singleton world_state row.
type WorldStateStore interface {
	// Init creates the world state at hour 0. Returns ErrDuplicateKey if it exists.
	Init(ctx context.Context, w *domain.WorldState) error

	// Get returns the world state. Returns ErrNotFound before Init.
	Get(ctx context.Context) (*domain.WorldState, error)

	// Advance moves the clock from expectedHour to expectedHour+1 and adds
	// delta to the totals. Returns ErrConflict if the clock is elsewhere.
	Advance(ctx context.Context, expectedHour int64, delta domain.WorldDelta) error
}

// CasinoStateStore provides access to the singleton casino_state row.
type CasinoStateStore interface {
	// Get returns the casino state, zero-valued if never written.
	Get(ctx context.Context) (*domain.CasinoState, error)

	// Apply adds revenue and spins and replaces the active player snapshot.
	Apply(ctx context.Context, delta domain.CasinoDelta) error
}

// HourLogStore provides access to hour_execution_log storage.
type HourLogStore interface {
	// Start records an in_progress attempt for hour. A previous failed row for
	// the same hour is reset and its attempt counter incremented.
	// Returns ErrConflict if the hour is already completed or in progress.
	Start(ctx context.Context, hour int64, runID string) (*domain.HourExecutionLog, error)

	// HasInProgress reports whether any hour is still in_progress.
	HasInProgress(ctx context.Context) (bool, error)

	// Complete marks hour completed with its counters. Returns ErrNotFound if
	// no in_progress row exists for hour.
	Complete(ctx context.Context, hour int64, c domain.HourCompletion) error

	// Fail marks hour failed with a message, creating the row if needed.
	Fail(ctx context.Context, hour int64, runID, message string) error

	// Get retrieves the audit row for hour. Returns ErrNotFound if not exists.
	Get(ctx context.Context, hour int64) (*domain.HourExecutionLog, error)
}

// HourStatsSink receives analytics for committed hours.
type HourStatsSink interface {
	Record(ctx context.Context, s *domain.HourStats) error
}

// Transactor runs functions inside a database transaction carried by ctx.
// Stores called with that ctx join the transaction.
type Transactor interface {
	// WithinTx commits if fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	// WithinSavepoint runs fn in a nested scope of the current transaction.
	// An error from fn rolls back only the nested scope.
	WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker grants a process-wide exclusive lock.
type Locker interface {
	// TryLock acquires the lock without waiting. Returns ErrLocked if held elsewhere.
	TryLock(ctx context.Context) (Lock, error)
}

// Lock is a held lock. Release must be called exactly once.
type Lock interface {
	Release(ctx context.Context) error
}
