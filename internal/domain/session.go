package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session is one continuous period of play. It stays open across hours
// until it is closed with a final balance.
type Session struct {
	ID             int64
	PlayerID       int64
	StartedAt      time.Time
	EndedAt        *time.Time
	InitialBalance decimal.Decimal
	FinalBalance   *decimal.Decimal
	Volatility     Volatility
	SimulationHour int64
}

// Open reports whether the session has not been closed.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.FinalBalance != nil {
		b := *s.FinalBalance
		c.FinalBalance = &b
	}
	return &c
}

// SessionClose carries the values written when a session ends.
type SessionClose struct {
	SessionID    int64
	FinalBalance decimal.Decimal
	EndedAt      time.Time
}
