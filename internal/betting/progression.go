package betting

import (
	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/money"
)

// Bet flexibility bands.
const (
	flexStatic   = 0.3
	flexElevated = 0.7
)

// NextBet returns the wager after a spin. Players never raise after a loss:
// a win grows the bet by a flexibility-dependent step, anything else keeps it.
// The result is clamped to [minBet, maxBet] and rounded to cents.
func NextBet(current decimal.Decimal, won bool, flexibility float64, minBet, maxBet decimal.Decimal) decimal.Decimal {
	next := current
	if won && flexibility >= flexStatic {
		var step float64
		if flexibility < flexElevated {
			step = 0.05 + flexibility*0.10
		} else {
			step = 0.10 + flexibility*0.20
		}
		next = current.Mul(decimal.NewFromFloat(1 + step))
	}
	return money.Round2(money.Clamp(next, minBet, maxBet))
}
