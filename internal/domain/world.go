package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorldState is the singleton simulation clock and its running totals.
type WorldState struct {
	CurrentHour       int64
	MasterSeed        string
	SimulationStart   time.Time
	TotalSpins        int64
	TotalWagered      decimal.Decimal
	TotalPayout       decimal.Decimal
	TotalHouseRevenue decimal.Decimal
	UpdatedAt         time.Time
}

// HourTime returns the simulated wall-clock start of hour.
func (w *WorldState) HourTime(hour int64) time.Time {
	return w.SimulationStart.Add(time.Duration(hour) * time.Hour)
}

// WorldDelta is added to the world totals when an hour completes.
type WorldDelta struct {
	Spins        int64
	Wagered      decimal.Decimal
	Payout       decimal.Decimal
	HouseRevenue decimal.Decimal
}

// CasinoState is the singleton house ledger.
type CasinoState struct {
	HouseRevenue  decimal.Decimal
	ActivePlayers int
	TotalSpins    int64
	UpdatedAt     time.Time
}

// CasinoDelta is applied to the casino state when an hour completes.
type CasinoDelta struct {
	HouseRevenue  decimal.Decimal
	ActivePlayers int // snapshot, replaces the stored value
	Spins         int64
}
