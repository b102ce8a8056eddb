package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Archetype is the behavioral class of a simulated player.
type Archetype string

const (
	ArchetypeRecreational Archetype = "recreational"
	ArchetypeVIP          Archetype = "vip"
	ArchetypeBonusHunter  Archetype = "bonus_hunter"
)

// Archetypes lists every archetype in stable order.
var Archetypes = []Archetype{ArchetypeRecreational, ArchetypeVIP, ArchetypeBonusHunter}

// Valid reports whether a is a known archetype.
func (a Archetype) Valid() bool {
	switch a {
	case ArchetypeRecreational, ArchetypeVIP, ArchetypeBonusHunter:
		return true
	}
	return false
}

// PlayerStatus is the lifecycle state of a player between hours.
type PlayerStatus string

const (
	PlayerStatusIdle   PlayerStatus = "idle"
	PlayerStatusActive PlayerStatus = "active"
	PlayerStatusBroke  PlayerStatus = "broke"
)

// Valid reports whether s is a known status.
func (s PlayerStatus) Valid() bool {
	switch s {
	case PlayerStatusIdle, PlayerStatusActive, PlayerStatusBroke:
		return true
	}
	return false
}

// Player is a simulated casino customer.
type Player struct {
	ID          int64
	Archetype   Archetype
	Balance     decimal.Decimal
	LifetimePnL decimal.Decimal
	Status      PlayerStatus
	DNA         DNA
	CreatedAt   time.Time
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	c := *p
	c.DNA = p.DNA.Clone()
	return &c
}

// PlayerUpdate is the post-hour balance and status written back for one player.
type PlayerUpdate struct {
	PlayerID      int64
	Balance       decimal.Decimal
	Status        PlayerStatus
	ProfitAndLoss decimal.Decimal // delta for the hour, added to LifetimePnL
}

// StatusBreakdown counts players per status.
type StatusBreakdown struct {
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Broke  int `json:"broke"`
}

// Add increments the counter for status.
func (b *StatusBreakdown) Add(status PlayerStatus, n int) {
	switch status {
	case PlayerStatusActive:
		b.Active += n
	case PlayerStatusIdle:
		b.Idle += n
	case PlayerStatusBroke:
		b.Broke += n
	}
}

// Total returns the number of players counted.
func (b StatusBreakdown) Total() int {
	return b.Active + b.Idle + b.Broke
}
