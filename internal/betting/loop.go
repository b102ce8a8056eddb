package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/idhash"
	"casino-sim-lab/internal/rng"
	"casino-sim-lab/internal/slot"
	"casino-sim-lab/internal/spin"
)

// ExitReason records why a player stopped spinning.
type ExitReason string

const (
	ExitBroke          ExitReason = "broke"
	ExitStopLoss       ExitReason = "stop_loss"
	ExitProfitGoal     ExitReason = "profit_goal"
	ExitSpinsExhausted ExitReason = "spins_exhausted"
)

type loopState int

// ctxCheckInterval is how many spins run between cancellation checks.
const ctxCheckInterval = 64

const (
	stateStarting loopState = iota
	stateSpinning
	stateExited
)

// Input is one player's hour of play.
type Input struct {
	Player    *domain.Player
	SessionID int64
	Model     *slot.Model
	Rng       rng.Rng
	Hour      int64
	HourStart time.Time

	// Spins fixes the number of spins. Zero draws it from the archetype's range.
	Spins int
}

// Outcome is the result of one player's hour.
type Outcome struct {
	PlayerID        int64
	SessionID       int64
	Rounds          []domain.GameRound
	StartingBalance decimal.Decimal
	FinalBalance    decimal.Decimal
	FinalStatus     domain.PlayerStatus
	ExitReason      ExitReason
	SpinsPlanned    int
	Wagered         decimal.Decimal
	Payout          decimal.Decimal
}

// ProfitLoss returns the player's net result for the hour.
func (o *Outcome) ProfitLoss() decimal.Decimal {
	return o.FinalBalance.Sub(o.StartingBalance)
}

// HouseRevenue returns wagered minus paid out.
func (o *Outcome) HouseRevenue() decimal.Decimal {
	return o.Wagered.Sub(o.Payout)
}

// Run executes the micro-bet loop. Before every spin it checks, in order:
// broke, stop-loss, profit goal, then whether the planned spins are used up.
// Cancelling ctx aborts the loop with ctx.Err().
func Run(ctx context.Context, in Input) (*Outcome, error) {
	if in.Player == nil {
		return nil, errors.New("betting: player is required")
	}
	if in.Model == nil {
		return nil, fmt.Errorf("betting: player %d has no slot model", in.Player.ID)
	}
	if in.Rng == nil {
		return nil, fmt.Errorf("betting: player %d has no rng", in.Player.ID)
	}

	profile, err := ProfileFor(in.Player.Archetype)
	if err != nil {
		return nil, err
	}
	dna := in.Player.DNA

	out := &Outcome{
		PlayerID:        in.Player.ID,
		SessionID:       in.SessionID,
		StartingBalance: in.Player.Balance,
		FinalBalance:    in.Player.Balance,
		Wagered:         decimal.Zero,
		Payout:          decimal.Zero,
	}

	var (
		balance  = in.Player.Balance
		bet      decimal.Decimal
		interval time.Duration
		spinIdx  int
	)

	stopLoss := decimal.NewFromFloat(dna.StopLossLimit)
	var profitGoal decimal.Decimal
	hasGoal := dna.ProfitGoal != nil
	if hasGoal {
		profitGoal = decimal.NewFromFloat(*dna.ProfitGoal)
	}

	state := stateStarting
	for state != stateExited {
		switch state {
		case stateStarting:
			spins := in.Spins
			if spins <= 0 {
				spins, err = in.Rng.Int(profile.MinSpins, profile.MaxSpins)
				if err != nil {
					return nil, fmt.Errorf("draw spin count for player %d: %w", in.Player.ID, err)
				}
			}
			out.SpinsPlanned = spins
			out.Rounds = make([]domain.GameRound, 0, spins)
			interval = time.Hour / time.Duration(spins)
			bet = profile.InitialBet(balance, dna.RiskAppetite)
			state = stateSpinning

		case stateSpinning:
			if reason, stop := checkExit(balance, out.StartingBalance, profile.MinBet, stopLoss, profitGoal, hasGoal); stop {
				out.ExitReason = reason
				state = stateExited
				continue
			}
			if spinIdx >= out.SpinsPlanned {
				out.ExitReason = ExitSpinsExhausted
				state = stateExited
				continue
			}

			if spinIdx%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("player %d stopped at spin %d: %w", in.Player.ID, spinIdx, err)
				}
			}

			wager := decimal.Min(bet, balance)
			at := in.HourStart.Add(time.Duration(spinIdx) * interval)
			res := spin.Resolve(in.Model, wager, balance, in.Rng, at)

			out.Rounds = append(out.Rounds, domain.GameRound{
				RoundID:        idhash.ComputeRoundID(in.Hour, in.Player.ID, in.SessionID, spinIdx),
				SessionID:      in.SessionID,
				PlayerID:       in.Player.ID,
				SimulationHour: in.Hour,
				SpinIndex:      spinIdx,
				Outcome:        res.OutcomeKey,
				BetAmount:      res.Wager,
				Multiplier:     res.Multiplier,
				Payout:         res.Payout,
				BalanceAfter:   res.EndingBalance,
				OccurredAt:     at,
			})
			out.Wagered = out.Wagered.Add(res.Wager)
			out.Payout = out.Payout.Add(res.Payout)

			balance = res.EndingBalance
			bet = NextBet(bet, res.Won(), dna.BetFlexibility, profile.MinBet, profile.MaxBet)
			spinIdx++
		}
	}

	out.FinalBalance = balance
	if balance.LessThan(profile.MinBet) {
		out.FinalStatus = domain.PlayerStatusBroke
	} else {
		out.FinalStatus = domain.PlayerStatusIdle
	}
	return out, nil
}

// checkExit evaluates the stop conditions in priority order.
func checkExit(balance, start, minBet, stopLoss, profitGoal decimal.Decimal, hasGoal bool) (ExitReason, bool) {
	if balance.LessThan(minBet) {
		return ExitBroke, true
	}
	if start.IsPositive() {
		lossFraction := start.Sub(balance).Div(start)
		if balance.LessThan(start) && lossFraction.GreaterThanOrEqual(stopLoss) {
			return ExitStopLoss, true
		}
		if hasGoal && balance.Div(start).GreaterThanOrEqual(profitGoal) {
			return ExitProfitGoal, true
		}
	}
	return "", false
}
