package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameRound is a single resolved spin. Rounds are append-only.
type GameRound struct {
	RoundID        string // deterministic hash, see idhash.ComputeRoundID
	SessionID      int64
	PlayerID       int64
	SimulationHour int64
	SpinIndex      int
	Outcome        string
	BetAmount      decimal.Decimal
	Multiplier     decimal.Decimal
	Payout         decimal.Decimal
	BalanceAfter   decimal.Decimal
	OccurredAt     time.Time
}

// HouseResult returns bet minus payout, the house's take on this round.
func (r *GameRound) HouseResult() decimal.Decimal {
	return r.BetAmount.Sub(r.Payout)
}

// RoundColumns is the number of persisted columns per round.
// Batched inserts size against this.
const RoundColumns = 11
