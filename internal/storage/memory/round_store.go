package memory

import (
	"context"
	"sort"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// RoundStore is an in-memory implementation of storage.RoundStore.
type RoundStore struct {
	db *DB
}

// NewRoundStore creates a round store on db.
func NewRoundStore(db *DB) *RoundStore {
	return &RoundStore{db: db}
}

var _ storage.RoundStore = (*RoundStore)(nil)

// InsertBatch appends rounds. Returns ErrDuplicateKey if any round_id is
// already stored or repeated within the batch; nothing is written then.
func (s *RoundStore) InsertBatch(ctx context.Context, rounds []domain.GameRound) error {
	if len(rounds) == 0 {
		return nil
	}
	for _, r := range rounds {
		if r.RoundID == "" {
			return storage.ErrInvalidInput
		}
	}

	return s.db.write(ctx, func(t *tables) error {
		batch := make(map[string]struct{}, len(rounds))
		for _, r := range rounds {
			if _, dup := batch[r.RoundID]; dup || t.hasRoundID(r.RoundID) {
				return storage.ErrDuplicateKey
			}
			batch[r.RoundID] = struct{}{}
		}
		t.rounds = append(t.rounds, rounds...)
		for _, r := range rounds {
			t.newRoundIDs[r.RoundID] = struct{}{}
			t.roundsByHr[r.SimulationHour]++
		}
		return nil
	})
}

// CountByHour returns the number of rounds recorded for an hour.
func (s *RoundStore) CountByHour(ctx context.Context, hour int64) (int64, error) {
	var n int64
	err := s.db.read(ctx, func(t *tables) error {
		n = t.roundsByHr[hour]
		return nil
	})
	return n, err
}

// GetBySession retrieves a session's rounds ordered by hour and spin index.
func (s *RoundStore) GetBySession(ctx context.Context, sessionID int64) ([]domain.GameRound, error) {
	var out []domain.GameRound
	err := s.db.read(ctx, func(t *tables) error {
		for _, r := range t.rounds {
			if r.SessionID == sessionID {
				out = append(out, r)
			}
		}
		return nil
	})

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SimulationHour != out[j].SimulationHour {
			return out[i].SimulationHour < out[j].SimulationHour
		}
		return out[i].SpinIndex < out[j].SpinIndex
	})
	return out, err
}
