package memory

import (
	"context"
	"sort"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// PlayerStore is an in-memory implementation of storage.PlayerStore.
type PlayerStore struct {
	db *DB
}

// NewPlayerStore creates a player store on db.
func NewPlayerStore(db *DB) *PlayerStore {
	return &PlayerStore{db: db}
}

var _ storage.PlayerStore = (*PlayerStore)(nil)

func validPlayer(p *domain.Player) bool {
	return p != nil && p.Archetype.Valid() && p.Status.Valid() && !p.Balance.IsNegative()
}

// Insert adds a new player and assigns its ID.
func (s *PlayerStore) Insert(ctx context.Context, p *domain.Player) error {
	return s.InsertBulk(ctx, []*domain.Player{p})
}

// InsertBulk adds players atomically and assigns their IDs in order.
func (s *PlayerStore) InsertBulk(ctx context.Context, players []*domain.Player) error {
	for _, p := range players {
		if !validPlayer(p) {
			return storage.ErrInvalidInput
		}
	}

	return s.db.write(ctx, func(t *tables) error {
		for _, p := range players {
			t.nextPlayerID++
			p.ID = t.nextPlayerID
			t.players[p.ID] = p.Clone()
		}
		return nil
	})
}

// GetByID retrieves a player. Returns ErrNotFound if not exists.
func (s *PlayerStore) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	var out *domain.Player
	err := s.db.read(ctx, func(t *tables) error {
		p, ok := t.players[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// ListByStatus retrieves players with the given status, ordered by ID ASC.
func (s *PlayerStore) ListByStatus(ctx context.Context, status domain.PlayerStatus) ([]*domain.Player, error) {
	var out []*domain.Player
	err := s.db.read(ctx, func(t *tables) error {
		for _, p := range t.players {
			if p.Status == status {
				out = append(out, p.Clone())
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// UpdateStatus sets the status of one player. Returns ErrNotFound if not exists.
func (s *PlayerStore) UpdateStatus(ctx context.Context, id int64, status domain.PlayerStatus) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}

	return s.db.write(ctx, func(t *tables) error {
		p, ok := t.players[id]
		if !ok {
			return storage.ErrNotFound
		}
		c := p.Clone()
		c.Status = status
		t.players[id] = c
		return nil
	})
}

// ApplyUpdates writes balances and statuses and adds each PnL delta to the
// lifetime total. Unknown players fail the whole call.
func (s *PlayerStore) ApplyUpdates(ctx context.Context, updates []domain.PlayerUpdate) error {
	for _, u := range updates {
		if !u.Status.Valid() || u.Balance.IsNegative() {
			return storage.ErrInvalidInput
		}
	}

	return s.db.write(ctx, func(t *tables) error {
		for _, u := range updates {
			if _, ok := t.players[u.PlayerID]; !ok {
				return storage.ErrNotFound
			}
		}
		for _, u := range updates {
			c := t.players[u.PlayerID].Clone()
			c.Balance = u.Balance
			c.Status = u.Status
			c.LifetimePnL = c.LifetimePnL.Add(u.ProfitAndLoss)
			t.players[u.PlayerID] = c
		}
		return nil
	})
}

// CountByStatus returns the number of players per status.
func (s *PlayerStore) CountByStatus(ctx context.Context) (domain.StatusBreakdown, error) {
	var b domain.StatusBreakdown
	err := s.db.read(ctx, func(t *tables) error {
		for _, p := range t.players {
			b.Add(p.Status, 1)
		}
		return nil
	})
	return b, err
}
