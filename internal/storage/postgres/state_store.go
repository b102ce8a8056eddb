package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// WorldStateStore implements storage.WorldStateStore using PostgreSQL.
type WorldStateStore struct {
	pool *Pool
}

// NewWorldStateStore creates a new WorldStateStore.
func NewWorldStateStore(pool *Pool) *WorldStateStore {
	return &WorldStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WorldStateStore = (*WorldStateStore)(nil)

// Init creates the world state row. Returns ErrDuplicateKey if it exists.
func (s *WorldStateStore) Init(ctx context.Context, w *domain.WorldState) error {
	if w == nil || w.MasterSeed == "" || w.CurrentHour < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO world_state (
			id, current_hour, master_seed, simulation_start,
			total_spins, total_wagered, total_payout, total_house_revenue
		) VALUES (1, $1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric)
	`

	_, err := s.pool.db(ctx).Exec(ctx, query,
		w.CurrentHour,
		w.MasterSeed,
		w.SimulationStart,
		w.TotalSpins,
		amount(w.TotalWagered),
		amount(w.TotalPayout),
		amount(w.TotalHouseRevenue),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("init world state: %w", err)
	}
	return nil
}

// Get returns the world state. Returns ErrNotFound before Init.
func (s *WorldStateStore) Get(ctx context.Context) (*domain.WorldState, error) {
	query := `
		SELECT current_hour, master_seed, simulation_start, total_spins,
		       total_wagered::text, total_payout::text, total_house_revenue::text, updated_at
		FROM world_state
		WHERE id = 1
	`

	var w domain.WorldState
	var wagered, payout, revenue string
	err := s.pool.db(ctx).QueryRow(ctx, query).Scan(
		&w.CurrentHour, &w.MasterSeed, &w.SimulationStart, &w.TotalSpins,
		&wagered, &payout, &revenue, &w.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get world state: %w", err)
	}

	dst := []*decimal.Decimal{&w.TotalWagered, &w.TotalPayout, &w.TotalHouseRevenue}
	if err := amounts(dst, []string{wagered, payout, revenue}); err != nil {
		return nil, fmt.Errorf("world state: %w", err)
	}
	return &w, nil
}

// Advance moves the clock one hour forward if it still reads expectedHour.
func (s *WorldStateStore) Advance(ctx context.Context, expectedHour int64, delta domain.WorldDelta) error {
	query := `
		UPDATE world_state
		SET current_hour = current_hour + 1,
		    total_spins = total_spins + $2,
		    total_wagered = total_wagered + $3::numeric,
		    total_payout = total_payout + $4::numeric,
		    total_house_revenue = total_house_revenue + $5::numeric,
		    updated_at = NOW()
		WHERE id = 1 AND current_hour = $1
	`

	tag, err := s.pool.db(ctx).Exec(ctx, query,
		expectedHour,
		delta.Spins,
		amount(delta.Wagered),
		amount(delta.Payout),
		amount(delta.HouseRevenue),
	)
	if err != nil {
		return fmt.Errorf("advance world state: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.Get(ctx); err != nil {
		return err
	}
	return fmt.Errorf("advance from hour %d: %w", expectedHour, storage.ErrConflict)
}

// CasinoStateStore implements storage.CasinoStateStore using PostgreSQL.
type CasinoStateStore struct {
	pool *Pool
}

// NewCasinoStateStore creates a new CasinoStateStore.
func NewCasinoStateStore(pool *Pool) *CasinoStateStore {
	return &CasinoStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CasinoStateStore = (*CasinoStateStore)(nil)

// Get returns the casino state, zero-valued if the row does not exist yet.
func (s *CasinoStateStore) Get(ctx context.Context) (*domain.CasinoState, error) {
	query := `
		SELECT house_revenue::text, active_players, total_spins, updated_at
		FROM casino_state
		WHERE id = 1
	`

	var c domain.CasinoState
	var revenue string
	err := s.pool.db(ctx).QueryRow(ctx, query).Scan(&revenue, &c.ActivePlayers, &c.TotalSpins, &c.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return &domain.CasinoState{}, nil
		}
		return nil, fmt.Errorf("get casino state: %w", err)
	}

	if err := amounts([]*decimal.Decimal{&c.HouseRevenue}, []string{revenue}); err != nil {
		return nil, fmt.Errorf("casino state: %w", err)
	}
	return &c, nil
}

// Apply upserts the singleton row, adding revenue and spins.
func (s *CasinoStateStore) Apply(ctx context.Context, delta domain.CasinoDelta) error {
	if delta.ActivePlayers < 0 || delta.Spins < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO casino_state (id, house_revenue, active_players, total_spins, updated_at)
		VALUES (1, $1::numeric, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET house_revenue = casino_state.house_revenue + EXCLUDED.house_revenue,
		    active_players = EXCLUDED.active_players,
		    total_spins = casino_state.total_spins + EXCLUDED.total_spins,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.db(ctx).Exec(ctx, query, amount(delta.HouseRevenue), delta.ActivePlayers, delta.Spins); err != nil {
		return fmt.Errorf("apply casino delta: %w", err)
	}
	return nil
}
