// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Tick metrics
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	TickSpins          prometheus.Counter
	PlayersProcessed   prometheus.Counter
	SessionsTriggered  prometheus.Counter
	HouseRevenue       prometheus.Gauge
	CurrentHour        prometheus.Gauge
	LastSuccessfulTick prometheus.Gauge

	// Worker metrics
	WorkerTaskDuration *prometheus.HistogramVec
	WorkersPerTick     prometheus.Histogram
}

// NewMetrics creates a Metrics instance on its own registry, together with
// the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "casino_sim"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of hour ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Hour tick wall-clock duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		TickSpins: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_spins_total",
			Help:      "Total number of spins resolved by committed ticks",
		}),
		PlayersProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_players_processed_total",
			Help:      "Total number of player sessions simulated by committed ticks",
		}),
		SessionsTriggered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_triggered_total",
			Help:      "Total number of idle players that started a session",
		}),
		HouseRevenue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "casino",
			Name:      "house_revenue",
			Help:      "Cumulative house revenue",
		}),
		CurrentHour: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "current_hour",
			Help:      "Simulation clock after the last committed tick",
		}),
		LastSuccessfulTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last committed tick",
		}),

		WorkerTaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workerpool",
			Name:      "worker_task_duration_seconds",
			Help:      "Duration of one worker chunk in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker"}),
		WorkersPerTick: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workerpool",
			Name:      "workers_per_tick",
			Help:      "Pool size chosen per tick",
			Buckets:   []float64{1, 2, 3, 4},
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TickResult is what a committed tick reports.
type TickResult struct {
	Spins             int64
	PlayersProcessed  int
	SessionsTriggered int
	Workers           int
	CurrentHour       int64
	HouseRevenue      float64 // cumulative
}

// RecordTick counts a tick with its outcome and duration.
func (m *Metrics) RecordTick(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(d.Seconds())
}

// RecordTickResult updates counters and gauges after a commit.
func (m *Metrics) RecordTickResult(r TickResult) {
	if m == nil {
		return
	}
	m.TickSpins.Add(float64(r.Spins))
	m.PlayersProcessed.Add(float64(r.PlayersProcessed))
	m.SessionsTriggered.Add(float64(r.SessionsTriggered))
	if r.Workers > 0 {
		m.WorkersPerTick.Observe(float64(r.Workers))
	}
	m.CurrentHour.Set(float64(r.CurrentHour))
	m.HouseRevenue.Set(r.HouseRevenue)
	m.LastSuccessfulTick.SetToCurrentTime()
}

// ObserveWorkerTask records the duration of one worker chunk.
func (m *Metrics) ObserveWorkerTask(worker int, d time.Duration) {
	if m == nil {
		return
	}
	m.WorkerTaskDuration.WithLabelValues(strconv.Itoa(worker)).Observe(d.Seconds())
}
