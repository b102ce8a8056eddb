// Package spin resolves single slot wagers against a model registry.
package spin

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/money"
	"casino-sim-lab/internal/rng"
	"casino-sim-lab/internal/slot"
)

var (
	// ErrInvalidWager is returned when the wager is malformed or not positive.
	ErrInvalidWager = errors.New("invalid wager")

	// ErrInvalidBalance is returned when the balance is malformed or negative.
	ErrInvalidBalance = errors.New("invalid balance")

	// ErrInsufficientBalance is returned when the wager exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Request is a spin with string amounts as received at the boundary.
// RNG precedence: RoundSeed, then Rng, then the engine's fallback.
type Request struct {
	Slot      string
	Wager     string
	Balance   string
	RoundSeed string
	Rng       rng.Rng
	At        time.Time
}

// Result is a resolved spin.
type Result struct {
	Slot            string
	OutcomeKey      string
	OutcomeLabel    string
	Multiplier      decimal.Decimal
	Wager           decimal.Decimal
	Payout          decimal.Decimal
	ProfitLoss      decimal.Decimal
	StartingBalance decimal.Decimal
	EndingBalance   decimal.Decimal
	Roll            float64
	Fallback        bool // outcome chosen by the last-outcome fallback
	At              time.Time
}

// Won reports whether the spin returned more than was wagered.
func (r *Result) Won() bool {
	return r.Payout.GreaterThan(r.Wager)
}

// Strings is the canonical string rendering of a Result.
type Strings struct {
	Slot          string `json:"slot"`
	Outcome       string `json:"outcome"`
	Label         string `json:"label"`
	Multiplier    string `json:"multiplier"`
	Wager         string `json:"wager"`
	Payout        string `json:"payout"`
	ProfitLoss    string `json:"profit_loss"`
	EndingBalance string `json:"ending_balance"`
}

// Strings renders amounts with money.Canonical.
func (r *Result) Strings() Strings {
	return Strings{
		Slot:          r.Slot,
		Outcome:       r.OutcomeKey,
		Label:         r.OutcomeLabel,
		Multiplier:    money.Canonical(r.Multiplier),
		Wager:         money.Canonical(r.Wager),
		Payout:        money.Canonical(r.Payout),
		ProfitLoss:    money.Canonical(r.ProfitLoss),
		EndingBalance: money.Canonical(r.EndingBalance),
	}
}

// Engine resolves spins. It is safe for concurrent use when every caller
// supplies its own RNG; the fallback RNG is not synchronized.
type Engine struct {
	registry *slot.Registry
	fallback rng.Rng
	now      func() time.Time
}

// NewEngine creates an engine. fallback serves requests that carry neither
// a round seed nor an RNG.
func NewEngine(registry *slot.Registry, fallback rng.Rng) *Engine {
	return &Engine{registry: registry, fallback: fallback, now: time.Now}
}

// Registry returns the model registry backing the engine.
func (e *Engine) Registry() *slot.Registry {
	return e.registry
}

// Spin validates the request and resolves it.
func (e *Engine) Spin(req Request) (*Result, error) {
	wager, err := money.Parse(req.Wager)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWager, err)
	}
	if !wager.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive, got %s", ErrInvalidWager, req.Wager)
	}

	balance, err := money.Parse(req.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: must not be negative, got %s", ErrInvalidBalance, req.Balance)
	}

	if wager.GreaterThan(balance) {
		return nil, fmt.Errorf("%w: wager %s exceeds balance %s",
			ErrInsufficientBalance, money.Canonical(wager), money.Canonical(balance))
	}

	model, err := e.registry.Get(req.Slot)
	if err != nil {
		return nil, err
	}

	r := e.pickRng(req)
	if r == nil {
		return nil, errors.New("spin: no rng available")
	}

	at := req.At
	if at.IsZero() {
		at = e.now()
	}
	return Resolve(model, wager, balance, r, at), nil
}

func (e *Engine) pickRng(req Request) rng.Rng {
	switch {
	case req.RoundSeed != "":
		return rng.New(req.RoundSeed)
	case req.Rng != nil:
		return req.Rng
	default:
		return e.fallback
	}
}

// Resolve draws one roll from r and settles the wager against model.
// Inputs must already be validated.
func Resolve(model *slot.Model, wager, balance decimal.Decimal, r rng.Rng, at time.Time) *Result {
	roll := r.Random()
	outcome, fallback := model.Select(roll)

	payout := wager.Mul(outcome.Multiplier)
	return &Result{
		Slot:            model.Name,
		OutcomeKey:      outcome.Key,
		OutcomeLabel:    outcome.Label,
		Multiplier:      outcome.Multiplier,
		Wager:           wager,
		Payout:          payout,
		ProfitLoss:      payout.Sub(wager),
		StartingBalance: balance,
		EndingBalance:   balance.Sub(wager).Add(payout),
		Roll:            roll,
		Fallback:        fallback,
		At:              at,
	}
}
