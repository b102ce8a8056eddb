// Package slot validates slot paytables and serves them by name.
package slot

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// probabilityTolerance bounds how far a paytable's total may drift from 1.
const probabilityTolerance = 1e-6

var (
	// ErrInvalidModel is returned when a model config fails validation.
	ErrInvalidModel = errors.New("invalid slot model")

	// ErrUnknownModel is returned by Get for unregistered names.
	ErrUnknownModel = errors.New("unknown slot model")
)

// Outcome is a validated paytable row with its cumulative probability.
type Outcome struct {
	Key                   string
	Label                 string
	Probability           float64
	Multiplier            decimal.Decimal
	CumulativeProbability float64
}

// Model is an immutable, validated slot model.
type Model struct {
	Name       string
	Volatility string
	Outcomes   []Outcome
	RTP        float64 // sum of probability * multiplier
}

// Select maps a roll in [0, 1) to the first outcome whose cumulative
// probability exceeds it. If floating-point drift leaves no match,
// the last outcome is returned with fallback set.
func (m *Model) Select(roll float64) (outcome Outcome, fallback bool) {
	for _, o := range m.Outcomes {
		if o.CumulativeProbability > roll {
			return o, false
		}
	}
	return m.Outcomes[len(m.Outcomes)-1], true
}

// Registry maps model names to validated models. It is read-only after Build.
type Registry struct {
	models map[string]*Model
}

// Build validates every config and returns a registry. A single invalid
// config fails the whole build.
func Build(configs []ModelConfig) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model, len(configs))}
	for _, cfg := range configs {
		m, err := buildModel(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := r.models[m.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate model name %q", ErrInvalidModel, m.Name)
		}
		r.models[m.Name] = m
	}
	return r, nil
}

// BuildDefault builds the registry from the embedded models.
func BuildDefault() (*Registry, error) {
	configs, err := DefaultConfigs()
	if err != nil {
		return nil, err
	}
	return Build(configs)
}

// Get returns the model registered under name.
func (r *Registry) Get(name string) (*Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildModel(cfg ModelConfig) (*Model, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidModel)
	}
	if len(cfg.Outcomes) == 0 {
		return nil, fmt.Errorf("%w: model %q has no outcomes", ErrInvalidModel, cfg.Name)
	}

	m := &Model{
		Name:       cfg.Name,
		Volatility: cfg.Volatility,
		Outcomes:   make([]Outcome, 0, len(cfg.Outcomes)),
	}

	seen := make(map[string]struct{}, len(cfg.Outcomes))
	var cumulative float64
	for _, oc := range cfg.Outcomes {
		if oc.Key == "" {
			return nil, fmt.Errorf("%w: model %q has an outcome without key", ErrInvalidModel, cfg.Name)
		}
		if _, dup := seen[oc.Key]; dup {
			return nil, fmt.Errorf("%w: model %q has duplicate outcome key %q", ErrInvalidModel, cfg.Name, oc.Key)
		}
		seen[oc.Key] = struct{}{}

		if math.IsNaN(oc.Probability) || oc.Probability <= 0 || oc.Probability > 1 {
			return nil, fmt.Errorf("%w: model %q outcome %q probability %v not in (0,1]",
				ErrInvalidModel, cfg.Name, oc.Key, oc.Probability)
		}
		if math.IsNaN(oc.Multiplier) || math.IsInf(oc.Multiplier, 0) || oc.Multiplier < 0 {
			return nil, fmt.Errorf("%w: model %q outcome %q multiplier %v must be finite and >= 0",
				ErrInvalidModel, cfg.Name, oc.Key, oc.Multiplier)
		}

		cumulative += oc.Probability
		label := oc.Label
		if label == "" {
			label = oc.Key
		}
		m.Outcomes = append(m.Outcomes, Outcome{
			Key:                   oc.Key,
			Label:                 label,
			Probability:           oc.Probability,
			Multiplier:            decimal.NewFromFloat(oc.Multiplier),
			CumulativeProbability: cumulative,
		})
		m.RTP += oc.Probability * oc.Multiplier
	}

	if math.Abs(cumulative-1) > probabilityTolerance {
		return nil, fmt.Errorf("%w: model %q probabilities sum to %v, want 1",
			ErrInvalidModel, cfg.Name, cumulative)
	}

	return m, nil
}
