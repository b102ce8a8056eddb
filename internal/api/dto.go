package api

import (
	"time"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/money"
)

// Response bodies. Amounts are canonical decimal strings.

type worldResponse struct {
	CurrentHour       int64     `json:"current_hour"`
	SimulationStart   time.Time `json:"simulation_start"`
	SimulationTime    time.Time `json:"simulation_time"`
	TotalSpins        int64     `json:"total_spins"`
	TotalWagered      string    `json:"total_wagered"`
	TotalPayout       string    `json:"total_payout"`
	TotalHouseRevenue string    `json:"total_house_revenue"`
	UpdatedAt         time.Time `json:"updated_at"`
	CachedAt          time.Time `json:"cached_at"`
}

func toWorldResponse(w domain.WorldState, cachedAt time.Time) worldResponse {
	return worldResponse{
		CurrentHour:       w.CurrentHour,
		SimulationStart:   w.SimulationStart,
		SimulationTime:    w.HourTime(w.CurrentHour),
		TotalSpins:        w.TotalSpins,
		TotalWagered:      money.Canonical(w.TotalWagered),
		TotalPayout:       money.Canonical(w.TotalPayout),
		TotalHouseRevenue: money.Canonical(w.TotalHouseRevenue),
		UpdatedAt:         w.UpdatedAt,
		CachedAt:          cachedAt,
	}
}

type casinoResponse struct {
	HouseRevenue  string    `json:"house_revenue"`
	ActivePlayers int       `json:"active_players"`
	TotalSpins    int64     `json:"total_spins"`
	UpdatedAt     time.Time `json:"updated_at"`
	CachedAt      time.Time `json:"cached_at"`
}

func toCasinoResponse(c domain.CasinoState, cachedAt time.Time) casinoResponse {
	return casinoResponse{
		HouseRevenue:  money.Canonical(c.HouseRevenue),
		ActivePlayers: c.ActivePlayers,
		TotalSpins:    c.TotalSpins,
		UpdatedAt:     c.UpdatedAt,
		CachedAt:      cachedAt,
	}
}

type hourResponse struct {
	Hour              int64      `json:"hour"`
	RunID             string     `json:"run_id"`
	Status            string     `json:"status"`
	Attempt           int        `json:"attempt"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	SessionsTriggered int        `json:"sessions_triggered"`
	PlayersProcessed  int        `json:"players_processed"`
	TotalSpins        int64      `json:"total_spins"`
	HouseRevenue      string     `json:"house_revenue"`
	Error             string     `json:"error,omitempty"`
}

func toHourResponse(l *domain.HourExecutionLog) hourResponse {
	return hourResponse{
		Hour:              l.Hour,
		RunID:             l.RunID,
		Status:            string(l.Status),
		Attempt:           l.Attempt,
		StartedAt:         l.StartedAt,
		FinishedAt:        l.FinishedAt,
		SessionsTriggered: l.SessionsTriggered,
		PlayersProcessed:  l.PlayersProcessed,
		TotalSpins:        l.TotalSpins,
		HouseRevenue:      money.Canonical(l.HouseRevenue),
		Error:             l.ErrorMessage,
	}
}

type healthResponse struct {
	Status      string    `json:"status"`
	Uptime      string    `json:"uptime"`
	CurrentHour *int64    `json:"current_hour,omitempty"`
	LastUpdate  time.Time `json:"last_update,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
