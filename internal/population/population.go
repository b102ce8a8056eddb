// Package population generates deterministic player populations.
package population

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/money"
	"casino-sim-lab/internal/rng"
)

// span is a half-open float range.
type span struct{ lo, hi float64 }

func (s span) draw(r rng.Rng) (float64, error) {
	return r.Float(s.lo, s.hi)
}

// traits holds the DNA ranges of one archetype.
type traits struct {
	returnProb   span
	risk         span
	flexibility  span
	promo        span
	stopLoss     span
	goalChance   float64
	goal         span
	volatilities []domain.Volatility
	startBalance span
}

var archetypeTraits = map[domain.Archetype]traits{
	domain.ArchetypeRecreational: {
		returnProb:   span{0.2, 0.5},
		risk:         span{0.1, 0.5},
		flexibility:  span{0, 0.5},
		promo:        span{0, 0.3},
		stopLoss:     span{0.3, 0.6},
		goalChance:   0.5,
		goal:         span{1.3, 2.0},
		volatilities: []domain.Volatility{domain.VolatilityLow, domain.VolatilityMedium},
		startBalance: span{50, 500},
	},
	domain.ArchetypeVIP: {
		returnProb:   span{0.5, 0.85},
		risk:         span{0.5, 0.9},
		flexibility:  span{0.4, 1},
		promo:        span{0, 0.2},
		stopLoss:     span{0.4, 0.8},
		goalChance:   0.3,
		goal:         span{1.5, 3.0},
		volatilities: []domain.Volatility{domain.VolatilityMedium, domain.VolatilityHigh},
		startBalance: span{2000, 20000},
	},
	domain.ArchetypeBonusHunter: {
		returnProb:   span{0.3, 0.7},
		risk:         span{0.05, 0.3},
		flexibility:  span{0, 0.3},
		promo:        span{0.6, 1},
		stopLoss:     span{0.15, 0.35},
		goalChance:   0.8,
		goal:         span{1.1, 1.4},
		volatilities: []domain.Volatility{domain.VolatilityLow},
		startBalance: span{100, 1000},
	},
}

// GenerateDNA draws a DNA for archetype a from r.
func GenerateDNA(a domain.Archetype, r rng.Rng) (domain.DNA, error) {
	t, ok := archetypeTraits[a]
	if !ok {
		return domain.DNA{}, fmt.Errorf("no traits for archetype %q", a)
	}

	dna := domain.DNA{Version: domain.DNAVersion}
	draws := []struct {
		dst *float64
		s   span
	}{
		{&dna.ReturnProbability, t.returnProb},
		{&dna.RiskAppetite, t.risk},
		{&dna.BetFlexibility, t.flexibility},
		{&dna.PromoDependency, t.promo},
		{&dna.StopLossLimit, t.stopLoss},
	}
	for _, d := range draws {
		v, err := d.s.draw(r)
		if err != nil {
			return domain.DNA{}, err
		}
		*d.dst = v
	}

	if r.Random() < t.goalChance {
		g, err := t.goal.draw(r)
		if err != nil {
			return domain.DNA{}, err
		}
		dna.ProfitGoal = &g
	}

	vol, err := rng.Pick(r, t.volatilities)
	if err != nil {
		return domain.DNA{}, err
	}
	dna.PreferredVolatility = vol
	return dna, nil
}

// Mix weights the archetypes of a generated population.
type Mix map[domain.Archetype]float64

// DefaultMix is mostly recreational players with a thin VIP tier.
var DefaultMix = Mix{
	domain.ArchetypeRecreational: 0.75,
	domain.ArchetypeVIP:          0.05,
	domain.ArchetypeBonusHunter:  0.20,
}

// Spec describes a population to generate.
type Spec struct {
	Count     int
	Seed      string
	Mix       Mix // nil uses DefaultMix
	CreatedAt time.Time
}

// Generate builds Count idle players. IDs are left zero for the store to assign.
func Generate(spec Spec) ([]*domain.Player, error) {
	if spec.Count < 0 {
		return nil, errors.New("population count must not be negative")
	}
	mix := spec.Mix
	if mix == nil {
		mix = DefaultMix
	}
	pick, err := weightedPicker(mix)
	if err != nil {
		return nil, err
	}

	r := rng.New(spec.Seed + "-population")
	players := make([]*domain.Player, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		archetype := pick(r.Random())
		dna, err := GenerateDNA(archetype, r)
		if err != nil {
			return nil, err
		}
		bal, err := archetypeTraits[archetype].startBalance.draw(r)
		if err != nil {
			return nil, err
		}
		players = append(players, &domain.Player{
			Archetype:   archetype,
			Balance:     money.Round2(decimal.NewFromFloat(bal)),
			LifetimePnL: decimal.Zero,
			Status:      domain.PlayerStatusIdle,
			DNA:         dna,
			CreatedAt:   spec.CreatedAt,
		})
	}
	return players, nil
}

// weightedPicker maps a uniform roll to an archetype by cumulative weight,
// iterating archetypes in their fixed order.
func weightedPicker(mix Mix) (func(float64) domain.Archetype, error) {
	var total float64
	for a, w := range mix {
		if !a.Valid() {
			return nil, fmt.Errorf("unknown archetype %q in mix", a)
		}
		if w < 0 {
			return nil, fmt.Errorf("negative weight for %q", a)
		}
		total += w
	}
	if total <= 0 {
		return nil, errors.New("population mix has no weight")
	}

	type bound struct {
		archetype domain.Archetype
		upper     float64
	}
	var bounds []bound
	var acc float64
	for _, a := range domain.Archetypes {
		if w := mix[a]; w > 0 {
			acc += w / total
			bounds = append(bounds, bound{a, acc})
		}
	}
	return func(roll float64) domain.Archetype {
		for _, b := range bounds {
			if roll < b.upper {
				return b.archetype
			}
		}
		return bounds[len(bounds)-1].archetype
	}, nil
}
