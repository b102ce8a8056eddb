package betting

import (
	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/rng"
)

// promoOnlyThreshold is the promo dependency at which a bonus hunter
// only plays with an active promotion.
const promoOnlyThreshold = 0.9

// ShouldStartSession decides whether an idle player begins playing this hour.
// There are no promotions, so promo-dependent bonus hunters never start.
func ShouldStartSession(p *domain.Player, r rng.Rng) bool {
	if p.Status != domain.PlayerStatusIdle {
		return false
	}
	if p.Archetype == domain.ArchetypeBonusHunter && p.DNA.PromoDependency >= promoOnlyThreshold {
		return false
	}
	return r.Random() < p.DNA.ReturnProbability
}
