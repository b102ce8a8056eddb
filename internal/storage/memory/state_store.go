package memory

import (
	"context"
	"time"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// WorldStateStore is an in-memory implementation of storage.WorldStateStore.
type WorldStateStore struct {
	db  *DB
	now func() time.Time
}

// NewWorldStateStore creates a world state store on db.
func NewWorldStateStore(db *DB) *WorldStateStore {
	return &WorldStateStore{db: db, now: time.Now}
}

var _ storage.WorldStateStore = (*WorldStateStore)(nil)

// Init creates the world state. Returns ErrDuplicateKey if it exists.
func (s *WorldStateStore) Init(ctx context.Context, w *domain.WorldState) error {
	if w == nil || w.MasterSeed == "" || w.CurrentHour < 0 {
		return storage.ErrInvalidInput
	}

	return s.db.write(ctx, func(t *tables) error {
		if t.world != nil {
			return storage.ErrDuplicateKey
		}
		c := *w
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = s.now().UTC()
		}
		t.world = &c
		return nil
	})
}

// Get returns the world state. Returns ErrNotFound before Init.
func (s *WorldStateStore) Get(ctx context.Context) (*domain.WorldState, error) {
	var out *domain.WorldState
	err := s.db.read(ctx, func(t *tables) error {
		if t.world == nil {
			return storage.ErrNotFound
		}
		c := *t.world
		out = &c
		return nil
	})
	return out, err
}

// Advance moves the clock forward by one hour if it still reads expectedHour.
func (s *WorldStateStore) Advance(ctx context.Context, expectedHour int64, delta domain.WorldDelta) error {
	return s.db.write(ctx, func(t *tables) error {
		if t.world == nil {
			return storage.ErrNotFound
		}
		if t.world.CurrentHour != expectedHour {
			return storage.ErrConflict
		}
		c := *t.world
		c.CurrentHour++
		c.TotalSpins += delta.Spins
		c.TotalWagered = c.TotalWagered.Add(delta.Wagered)
		c.TotalPayout = c.TotalPayout.Add(delta.Payout)
		c.TotalHouseRevenue = c.TotalHouseRevenue.Add(delta.HouseRevenue)
		c.UpdatedAt = s.now().UTC()
		t.world = &c
		return nil
	})
}

// CasinoStateStore is an in-memory implementation of storage.CasinoStateStore.
type CasinoStateStore struct {
	db  *DB
	now func() time.Time
}

// NewCasinoStateStore creates a casino state store on db.
func NewCasinoStateStore(db *DB) *CasinoStateStore {
	return &CasinoStateStore{db: db, now: time.Now}
}

var _ storage.CasinoStateStore = (*CasinoStateStore)(nil)

// Get returns the casino state, zero-valued if never written.
func (s *CasinoStateStore) Get(ctx context.Context) (*domain.CasinoState, error) {
	var out domain.CasinoState
	err := s.db.read(ctx, func(t *tables) error {
		out = t.casino
		return nil
	})
	return &out, err
}

// Apply adds revenue and spins and replaces the active player snapshot.
func (s *CasinoStateStore) Apply(ctx context.Context, delta domain.CasinoDelta) error {
	if delta.ActivePlayers < 0 || delta.Spins < 0 {
		return storage.ErrInvalidInput
	}

	return s.db.write(ctx, func(t *tables) error {
		t.casino.HouseRevenue = t.casino.HouseRevenue.Add(delta.HouseRevenue)
		t.casino.ActivePlayers = delta.ActivePlayers
		t.casino.TotalSpins += delta.Spins
		t.casino.UpdatedAt = s.now().UTC()
		return nil
	})
}
