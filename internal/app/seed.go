package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/population"
	"casino-sim-lab/internal/storage"
)

// ErrAlreadySeeded is returned when the world state already exists.
var ErrAlreadySeeded = errors.New("world already seeded")

// seedChunk bounds how many players one InsertBulk call carries.
const seedChunk = 1000

// SeedSpec describes a fresh simulation.
type SeedSpec struct {
	MasterSeed      string
	SimulationStart time.Time
	Players         int
	Mix             population.Mix // nil uses population.DefaultMix
}

// Seed creates the world state at hour zero and inserts a generated player
// population, all in one transaction.
func Seed(ctx context.Context, s *Stores, spec SeedSpec) (int, error) {
	if spec.MasterSeed == "" {
		return 0, fmt.Errorf("seed: master seed is required: %w", storage.ErrInvalidInput)
	}
	start := spec.SimulationStart.UTC().Truncate(time.Hour)

	players, err := population.Generate(population.Spec{
		Count:     spec.Players,
		Seed:      spec.MasterSeed,
		Mix:       spec.Mix,
		CreatedAt: start,
	})
	if err != nil {
		return 0, fmt.Errorf("generate population: %w", err)
	}

	err = s.Transactor.WithinTx(ctx, func(ctx context.Context) error {
		err := s.World.Init(ctx, &domain.WorldState{
			CurrentHour:     0,
			MasterSeed:      spec.MasterSeed,
			SimulationStart: start,
		})
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrAlreadySeeded
		}
		if err != nil {
			return fmt.Errorf("init world state: %w", err)
		}

		for lo := 0; lo < len(players); lo += seedChunk {
			hi := min(lo+seedChunk, len(players))
			if err := s.Players.InsertBulk(ctx, players[lo:hi]); err != nil {
				return fmt.Errorf("insert players %d-%d: %w", lo, hi, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(players), nil
}
