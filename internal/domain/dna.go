package domain

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// DNAVersion is the current schema version of serialized DNA.
const DNAVersion = 1

// ErrUnsupportedDNAVersion is returned when decoding DNA with an unknown version.
var ErrUnsupportedDNAVersion = errors.New("unsupported dna version")

// Volatility selects which slot model a player prefers.
type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// Valid reports whether v is a known volatility.
func (v Volatility) Valid() bool {
	switch v {
	case VolatilityLow, VolatilityMedium, VolatilityHigh:
		return true
	}
	return false
}

// DNA holds the behavioral traits that drive a player's decisions.
// All fractions are in [0, 1]. ProfitGoal is a balance multiple (e.g. 1.5)
// and is nil when the player has no profit target.
type DNA struct {
	Version             int        `json:"version"`
	ReturnProbability   float64    `json:"return_probability"`
	RiskAppetite        float64    `json:"risk_appetite"`
	BetFlexibility      float64    `json:"bet_flexibility"`
	PromoDependency     float64    `json:"promo_dependency"`
	StopLossLimit       float64    `json:"stop_loss_limit"`
	ProfitGoal          *float64   `json:"profit_goal,omitempty"`
	PreferredVolatility Volatility `json:"preferred_volatility"`
}

// Clone returns a copy that shares no pointers with d.
func (d DNA) Clone() DNA {
	if d.ProfitGoal != nil {
		goal := *d.ProfitGoal
		d.ProfitGoal = &goal
	}
	return d
}

// Validate checks trait ranges.
func (d DNA) Validate() error {
	fractions := []struct {
		name  string
		value float64
	}{
		{"return_probability", d.ReturnProbability},
		{"risk_appetite", d.RiskAppetite},
		{"bet_flexibility", d.BetFlexibility},
		{"promo_dependency", d.PromoDependency},
		{"stop_loss_limit", d.StopLossLimit},
	}
	for _, f := range fractions {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("dna %s out of range [0,1]: %v", f.name, f.value)
		}
	}
	if d.ProfitGoal != nil && *d.ProfitGoal <= 1 {
		return fmt.Errorf("dna profit_goal must exceed 1: %v", *d.ProfitGoal)
	}
	if !d.PreferredVolatility.Valid() {
		return fmt.Errorf("dna preferred_volatility unknown: %q", d.PreferredVolatility)
	}
	return nil
}

// MarshalDNA encodes d as a versioned JSON document.
func MarshalDNA(d DNA) ([]byte, error) {
	if d.Version == 0 {
		d.Version = DNAVersion
	}
	return json.Marshal(d)
}

// UnmarshalDNA decodes a versioned JSON document produced by MarshalDNA.
func UnmarshalDNA(data []byte) (DNA, error) {
	var d DNA
	if err := json.Unmarshal(data, &d); err != nil {
		return DNA{}, fmt.Errorf("decode dna: %w", err)
	}
	if d.Version != DNAVersion {
		return DNA{}, fmt.Errorf("%w: %d", ErrUnsupportedDNAVersion, d.Version)
	}
	if err := d.Validate(); err != nil {
		return DNA{}, err
	}
	return d, nil
}
