// Package betting runs a player's automated wagers for one simulated hour.
package betting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/money"
)

// Profile holds the betting limits of an archetype.
type Profile struct {
	BaseBetPct decimal.Decimal // initial bet as a fraction of balance
	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	MinSpins   int
	MaxSpins   int
}

var profiles = map[domain.Archetype]Profile{
	domain.ArchetypeRecreational: {
		BaseBetPct: decimal.RequireFromString("0.02"),
		MinBet:     decimal.RequireFromString("0.50"),
		MaxBet:     decimal.NewFromInt(10),
		MinSpins:   40,
		MaxSpins:   120,
	},
	domain.ArchetypeVIP: {
		BaseBetPct: decimal.RequireFromString("0.03"),
		MinBet:     decimal.NewFromInt(5),
		MaxBet:     decimal.NewFromInt(500),
		MinSpins:   80,
		MaxSpins:   200,
	},
	domain.ArchetypeBonusHunter: {
		BaseBetPct: decimal.RequireFromString("0.01"),
		MinBet:     decimal.RequireFromString("0.20"),
		MaxBet:     decimal.NewFromInt(5),
		MinSpins:   30,
		MaxSpins:   80,
	},
}

// ProfileFor returns the profile of archetype a.
func ProfileFor(a domain.Archetype) (Profile, error) {
	p, ok := profiles[a]
	if !ok {
		return Profile{}, fmt.Errorf("no betting profile for archetype %q", a)
	}
	return p, nil
}

// InitialBet sizes the first wager of an hour:
// balance * basePct * (0.5 + riskAppetite), clamped and rounded to cents.
func (p Profile) InitialBet(balance decimal.Decimal, riskAppetite float64) decimal.Decimal {
	scale := decimal.NewFromFloat(0.5 + riskAppetite)
	bet := balance.Mul(p.BaseBetPct).Mul(scale)
	return money.Round2(money.Clamp(bet, p.MinBet, p.MaxBet))
}
