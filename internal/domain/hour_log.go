package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HourStatus is the lifecycle of one hour's execution.
type HourStatus string

const (
	HourStatusInProgress HourStatus = "in_progress"
	HourStatusCompleted  HourStatus = "completed"
	HourStatusFailed     HourStatus = "failed"
)

// HourExecutionLog is the audit row for one simulated hour.
// It is started once per attempt and updated at most once more.
type HourExecutionLog struct {
	Hour              int64
	RunID             string
	Status            HourStatus
	Attempt           int
	StartedAt         time.Time
	FinishedAt        *time.Time
	SessionsTriggered int
	PlayersProcessed  int
	TotalSpins        int64
	HouseRevenue      decimal.Decimal
	ErrorMessage      string
}

// HourCompletion is written to the audit row when an hour commits.
type HourCompletion struct {
	SessionsTriggered int
	PlayersProcessed  int
	TotalSpins        int64
	HouseRevenue      decimal.Decimal
	FinishedAt        time.Time
}

// HourStats is the analytics record published after an hour commits.
type HourStats struct {
	Hour              int64
	RunID             string
	SimulationTime    time.Time
	SessionsTriggered int
	PlayersProcessed  int
	TotalSpins        int64
	TotalWagered      decimal.Decimal
	TotalPayout       decimal.Decimal
	HouseRevenue      decimal.Decimal
	RTP               float64 // payout / wagered, 0 when nothing was wagered
	WorkerCount       int
	DurationMs        int64
	Breakdown         StatusBreakdown
}
