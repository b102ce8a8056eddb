// Package orchestrator drives one simulated hour at a time.
// A tick runs: admission → session trigger → population fetch → session
// binding → parallel simulation → aggregation → bulk persistence → finalize,
// all inside one transaction, followed by post-commit cache refresh.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/betting"
	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/money"
	"casino-sim-lab/internal/observability"
	"casino-sim-lab/internal/rng"
	"casino-sim-lab/internal/slot"
	"casino-sim-lab/internal/statecache"
	"casino-sim-lab/internal/storage"
	"casino-sim-lab/internal/workerpool"
)

// ErrTickInProgress is returned when another tick holds the lock or an
// audit row is still in_progress. Callers may retry later.
var ErrTickInProgress = errors.New("tick already in progress")

// Orchestrator runs hour ticks. It is safe for concurrent use; concurrent
// ticks are rejected rather than queued.
type Orchestrator struct {
	// Stores
	players    storage.PlayerStore
	sessions   storage.SessionStore
	rounds     storage.RoundStore
	world      storage.WorldStateStore
	casino     storage.CasinoStateStore
	hourLogs   storage.HourLogStore
	transactor storage.Transactor
	locker     storage.Locker

	// Post-commit targets
	worldCache  *statecache.Cache[domain.WorldState]
	casinoCache *statecache.Cache[domain.CasinoState]
	statsSink   storage.HourStatsSink
	metrics     *observability.Metrics

	registry    *slot.Registry
	minWorkers  int
	maxWorkers  int
	taskTimeout time.Duration
	simulate    workerpool.SimulateFunc

	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	Players    storage.PlayerStore
	Sessions   storage.SessionStore
	Rounds     storage.RoundStore
	World      storage.WorldStateStore
	Casino     storage.CasinoStateStore
	HourLogs   storage.HourLogStore
	Transactor storage.Transactor
	Locker     storage.Locker

	// Required slot models
	Registry *slot.Registry

	// Optional post-commit targets
	WorldCache  *statecache.Cache[domain.WorldState]
	CasinoCache *statecache.Cache[domain.CasinoState]
	StatsSink   storage.HourStatsSink
	Metrics     *observability.Metrics

	// Worker pool bounds; zero values mean 1 and workerpool.MaxWorkers.
	MinWorkers  int
	MaxWorkers  int
	TaskTimeout time.Duration

	// Simulate replaces the per-player simulation (tests).
	Simulate workerpool.SimulateFunc

	Logger   *slog.Logger
	Now      func() time.Time
	NewRunID func() string
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Players == nil, opts.Sessions == nil, opts.Rounds == nil,
		opts.World == nil, opts.Casino == nil, opts.HourLogs == nil:
		return nil, errors.New("orchestrator: all stores are required")
	case opts.Transactor == nil || opts.Locker == nil:
		return nil, errors.New("orchestrator: transactor and locker are required")
	case opts.Registry == nil:
		return nil, errors.New("orchestrator: slot registry is required")
	}

	o := &Orchestrator{
		players:     opts.Players,
		sessions:    opts.Sessions,
		rounds:      opts.Rounds,
		world:       opts.World,
		casino:      opts.Casino,
		hourLogs:    opts.HourLogs,
		transactor:  opts.Transactor,
		locker:      opts.Locker,
		worldCache:  opts.WorldCache,
		casinoCache: opts.CasinoCache,
		statsSink:   opts.StatsSink,
		metrics:     opts.Metrics,
		registry:    opts.Registry,
		minWorkers:  opts.MinWorkers,
		maxWorkers:  opts.MaxWorkers,
		taskTimeout: opts.TaskTimeout,
		simulate:    opts.Simulate,
		logger:      opts.Logger,
		now:         opts.Now,
		newRunID:    opts.NewRunID,
	}
	if o.worldCache == nil {
		o.worldCache = statecache.New[domain.WorldState]()
	}
	if o.casinoCache == nil {
		o.casinoCache = statecache.New[domain.CasinoState]()
	}
	if o.minWorkers <= 0 {
		o.minWorkers = 1
	}
	if o.maxWorkers <= 0 {
		o.maxWorkers = workerpool.MaxWorkers
	}
	if o.minWorkers > o.maxWorkers {
		return nil, fmt.Errorf("orchestrator: min workers %d exceeds max workers %d", o.minWorkers, o.maxWorkers)
	}
	if o.taskTimeout <= 0 {
		o.taskTimeout = workerpool.DefaultTaskTimeout
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	return o, nil
}

// WorldCache returns the cache refreshed after every commit.
func (o *Orchestrator) WorldCache() *statecache.Cache[domain.WorldState] {
	return o.worldCache
}

// CasinoCache returns the cache refreshed after every commit.
func (o *Orchestrator) CasinoCache() *statecache.Cache[domain.CasinoState] {
	return o.casinoCache
}

// Summary describes a committed tick.
type Summary struct {
	Message           string                 `json:"message"`
	RunID             string                 `json:"run_id,omitempty"`
	Hour              int64                  `json:"hour"`
	CurrentHour       int64                  `json:"current_hour"`
	SimulationTime    time.Time              `json:"simulation_time"`
	SessionsTriggered int                    `json:"sessions_triggered"`
	PlayersProcessed  int                    `json:"players_processed"`
	TotalSpins        int64                  `json:"total_spins"`
	HouseRevenue      string                 `json:"house_revenue"`
	StatusBreakdown   domain.StatusBreakdown `json:"status_breakdown"`
}

// tick carries one hour's state between phases.
type tick struct {
	runID     string
	hour      int64
	seed      string
	simTime   time.Time
	startedAt time.Time

	triggered int
	active    []*domain.Player
	sessions  []*domain.Session
	workers   int

	rounds  []domain.GameRound
	updates []domain.PlayerUpdate
	closes  []domain.SessionClose
	spins   int64
	wagered decimal.Decimal
	payout  decimal.Decimal
	revenue decimal.Decimal

	breakdown domain.StatusBreakdown
}

// RunHourTick simulates the current hour and advances the clock by one.
// Phases:
//  1. Admission: advisory lock, then no in_progress audit row
//  2. Log start (autocommit, visible to other nodes)
//  3. Trigger sessions for idle players, one savepoint each
//  4. Fetch active players
//  5. Early exit when nobody is active
//  6. Bind sessions
//  7. Run the worker pool
//  8. Aggregate
//  9. Bulk persistence
//  10. Finalize audit row and advance the clock, then commit
//  11. Post-commit: caches, metrics, hour stats
//  12. Cleanup: pool shutdown and lock release, on every path
//
// Any failure after phase 2 rolls back the transaction, marks the audit row
// failed and returns the original error.
func (o *Orchestrator) RunHourTick(ctx context.Context) (*Summary, error) {
	startedAt := o.now()

	// Phase 1: Admission control
	lock, err := o.locker.TryLock(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			o.metrics.RecordTick(observability.OutcomeRejected, o.now().Sub(startedAt))
			return nil, fmt.Errorf("%w: lock is held by another tick", ErrTickInProgress)
		}
		return nil, fmt.Errorf("phase 1 (admission) failed: %w", err)
	}
	defer func() {
		// Phase 12: Cleanup
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Error("tick_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	busy, err := o.hourLogs.HasInProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (admission) failed: %w", err)
	}
	if busy {
		o.metrics.RecordTick(observability.OutcomeRejected, o.now().Sub(startedAt))
		return nil, fmt.Errorf("%w: an hour is still marked in_progress", ErrTickInProgress)
	}

	world, err := o.world.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load world state) failed: %w", err)
	}

	t := &tick{
		runID:     o.newRunID(),
		hour:      world.CurrentHour,
		seed:      rng.HourSeed(world.MasterSeed, world.CurrentHour),
		simTime:   world.HourTime(world.CurrentHour),
		startedAt: startedAt,
		wagered:   decimal.Zero,
		payout:    decimal.Zero,
		revenue:   decimal.Zero,
	}
	log := o.logger.With(slog.Int64("hour", t.hour), slog.String("run_id", t.runID))

	// Phase 2: Log start
	entry, err := o.hourLogs.Start(ctx, t.hour, t.runID)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (log start) failed: %w", err)
	}
	log.Info("tick_started", slog.Int("attempt", entry.Attempt), slog.Time("simulation_time", t.simTime))

	// Phases 3-10 run in one transaction.
	if err := o.transactor.WithinTx(ctx, func(ctx context.Context) error {
		return o.runPhases(ctx, t, log)
	}); err != nil {
		o.markFailed(ctx, t, err, log)
		o.metrics.RecordTick(observability.OutcomeFailed, o.now().Sub(startedAt))
		return nil, err
	}

	// Phase 11: Post-commit
	o.afterCommit(ctx, t, log)

	summary := &Summary{
		Message:           fmt.Sprintf("hour %d completed", t.hour),
		RunID:             t.runID,
		Hour:              t.hour,
		CurrentHour:       t.hour + 1,
		SimulationTime:    t.simTime,
		SessionsTriggered: t.triggered,
		PlayersProcessed:  len(t.active),
		TotalSpins:        t.spins,
		HouseRevenue:      money.Fixed2(t.revenue),
		StatusBreakdown:   t.breakdown,
	}
	if len(t.active) == 0 {
		summary.Message = fmt.Sprintf("hour %d completed with no active players", t.hour)
	}

	log.Info("tick_completed",
		slog.Int("sessions_triggered", t.triggered),
		slog.Int("players_processed", len(t.active)),
		slog.Int64("total_spins", t.spins),
		slog.String("house_revenue", summary.HouseRevenue),
		slog.Int("workers", t.workers),
		slog.Duration("duration", o.now().Sub(startedAt)),
	)
	return summary, nil
}

func (o *Orchestrator) runPhases(ctx context.Context, t *tick, log *slog.Logger) error {
	// Phase 3: Session trigger
	if err := o.triggerSessions(ctx, t, log); err != nil {
		return fmt.Errorf("phase 3 (session trigger) failed: %w", err)
	}

	// Phase 4: Population fetch
	active, err := o.players.ListByStatus(ctx, domain.PlayerStatusActive)
	if err != nil {
		return fmt.Errorf("phase 4 (population fetch) failed: %w", err)
	}
	t.active = active

	// Phase 5: Early exit
	if len(t.active) == 0 {
		log.Info("tick_no_active_players")
		return o.finalize(ctx, t)
	}

	// Phase 6: Session binding
	if err := o.bindSessions(ctx, t); err != nil {
		return fmt.Errorf("phase 6 (session binding) failed: %w", err)
	}

	// Phase 7: Parallel execution
	results, err := o.execute(ctx, t, log)
	if err != nil {
		return fmt.Errorf("phase 7 (parallel execution) failed: %w", err)
	}

	// Phase 8: Aggregation
	o.aggregate(t, results)

	// Phase 9: Bulk persistence
	if err := o.persist(ctx, t); err != nil {
		return fmt.Errorf("phase 9 (bulk persistence) failed: %w", err)
	}

	// Phase 10: Finalize
	return o.finalize(ctx, t)
}

// triggerSessions flips idle players to active. Each player runs in its own
// savepoint; a failure is logged and the player stays idle until next hour.
func (o *Orchestrator) triggerSessions(ctx context.Context, t *tick, log *slog.Logger) error {
	idle, err := o.players.ListByStatus(ctx, domain.PlayerStatusIdle)
	if err != nil {
		return err
	}

	for _, p := range idle {
		if !betting.ShouldStartSession(p, rng.New(rng.TriggerSeed(t.seed, p.ID))) {
			continue
		}
		err := o.transactor.WithinSavepoint(ctx, func(ctx context.Context) error {
			return o.players.UpdateStatus(ctx, p.ID, domain.PlayerStatusActive)
		})
		if err != nil {
			log.Warn("session_trigger_failed", slog.Int64("player_id", p.ID), slog.String("error", err.Error()))
			continue
		}
		t.triggered++
	}
	return nil
}

// bindSessions pairs every active player with its open session, creating
// one with the player's preferred volatility when none is open.
func (o *Orchestrator) bindSessions(ctx context.Context, t *tick) error {
	t.sessions = make([]*domain.Session, len(t.active))
	for i, p := range t.active {
		sess, err := o.sessions.GetOpenByPlayer(ctx, p.ID)
		if errors.Is(err, storage.ErrNotFound) {
			sess = &domain.Session{
				PlayerID:       p.ID,
				StartedAt:      t.simTime,
				InitialBalance: p.Balance,
				Volatility:     p.DNA.PreferredVolatility,
				SimulationHour: t.hour,
			}
			err = o.sessions.Create(ctx, sess)
		}
		if err != nil {
			return fmt.Errorf("player %d: %w", p.ID, err)
		}
		t.sessions[i] = sess
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, t *tick, log *slog.Logger) ([]workerpool.WorkerResult, error) {
	t.workers = workerpool.WorkerCount(len(t.active), o.minWorkers, o.maxWorkers)

	opts := []workerpool.Option{
		workerpool.WithTaskTimeout(o.taskTimeout),
		workerpool.WithLogger(log),
		workerpool.WithObserver(o.metrics.ObserveWorkerTask),
	}
	if o.simulate != nil {
		opts = append(opts, workerpool.WithSimulator(o.simulate))
	}

	pool, err := workerpool.New(t.workers, o.registry, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Phase 12: Cleanup
		if err := pool.Shutdown(); err != nil {
			log.Error("worker_pool_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	return pool.Execute(ctx, workerpool.Batch{
		Players:    t.active,
		Sessions:   t.sessions,
		GlobalSeed: t.seed,
		Hour:       t.hour,
		HourStart:  t.simTime,
	})
}

// aggregate flattens worker results. House revenue is the sum of
// bet minus payout over every round.
func (o *Orchestrator) aggregate(t *tick, results []workerpool.WorkerResult) {
	endedAt := t.simTime.Add(time.Hour)

	for _, wr := range results {
		for _, out := range wr.Outcomes {
			t.rounds = append(t.rounds, out.Rounds...)
			for i := range out.Rounds {
				r := &out.Rounds[i]
				t.wagered = t.wagered.Add(r.BetAmount)
				t.payout = t.payout.Add(r.Payout)
				t.revenue = t.revenue.Add(r.HouseResult())
			}
			t.updates = append(t.updates, domain.PlayerUpdate{
				PlayerID:      out.PlayerID,
				Balance:       out.FinalBalance,
				Status:        out.FinalStatus,
				ProfitAndLoss: out.ProfitLoss(),
			})
			t.closes = append(t.closes, domain.SessionClose{
				SessionID:    out.SessionID,
				FinalBalance: out.FinalBalance,
				EndedAt:      endedAt,
			})
		}
	}
	t.spins = int64(len(t.rounds))
}

func (o *Orchestrator) persist(ctx context.Context, t *tick) error {
	if err := o.rounds.InsertBatch(ctx, t.rounds); err != nil {
		return fmt.Errorf("insert rounds: %w", err)
	}
	if err := o.players.ApplyUpdates(ctx, t.updates); err != nil {
		return fmt.Errorf("update players: %w", err)
	}
	if err := o.sessions.CloseBulk(ctx, t.closes); err != nil {
		return fmt.Errorf("close sessions: %w", err)
	}
	return nil
}

// finalize writes the casino delta, completes the audit row and advances
// the clock. The early-exit path lands here with zero totals.
func (o *Orchestrator) finalize(ctx context.Context, t *tick) error {
	err := o.casino.Apply(ctx, domain.CasinoDelta{
		HouseRevenue:  t.revenue,
		ActivePlayers: len(t.active),
		Spins:         t.spins,
	})
	if err != nil {
		return fmt.Errorf("phase 9 (casino state) failed: %w", err)
	}

	err = o.hourLogs.Complete(ctx, t.hour, domain.HourCompletion{
		SessionsTriggered: t.triggered,
		PlayersProcessed:  len(t.active),
		TotalSpins:        t.spins,
		HouseRevenue:      t.revenue,
		FinishedAt:        o.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("phase 10 (log complete) failed: %w", err)
	}

	err = o.world.Advance(ctx, t.hour, domain.WorldDelta{
		Spins:        t.spins,
		Wagered:      t.wagered,
		Payout:       t.payout,
		HouseRevenue: t.revenue,
	})
	if err != nil {
		return fmt.Errorf("phase 10 (advance clock) failed: %w", err)
	}

	if t.breakdown, err = o.players.CountByStatus(ctx); err != nil {
		return fmt.Errorf("phase 10 (status breakdown) failed: %w", err)
	}
	return nil
}

// markFailed records the failure outside the rolled-back transaction.
// Its own errors are only logged.
func (o *Orchestrator) markFailed(ctx context.Context, t *tick, cause error, log *slog.Logger) {
	log.Error("tick_failed", slog.String("error", cause.Error()))
	if err := o.hourLogs.Fail(context.WithoutCancel(ctx), t.hour, t.runID, cause.Error()); err != nil {
		log.Error("hour_log_fail_write_failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) afterCommit(ctx context.Context, t *tick, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	if err := o.Refresh(ctx); err != nil {
		log.Error("cache_refresh_failed", slog.String("error", err.Error()))
	}

	o.metrics.RecordTick(observability.OutcomeCompleted, o.now().Sub(t.startedAt))
	result := observability.TickResult{
		Spins:             t.spins,
		PlayersProcessed:  len(t.active),
		SessionsTriggered: t.triggered,
		Workers:           t.workers,
		CurrentHour:       t.hour + 1,
	}
	if snap, ok := o.casinoCache.Load(); ok {
		result.HouseRevenue = snap.Value.HouseRevenue.InexactFloat64()
	}
	o.metrics.RecordTickResult(result)

	if o.statsSink == nil {
		return
	}
	var rtp float64
	if t.wagered.IsPositive() {
		rtp = t.payout.Div(t.wagered).InexactFloat64()
	}
	stats := &domain.HourStats{
		Hour:              t.hour,
		RunID:             t.runID,
		SimulationTime:    t.simTime,
		SessionsTriggered: t.triggered,
		PlayersProcessed:  len(t.active),
		TotalSpins:        t.spins,
		TotalWagered:      t.wagered,
		TotalPayout:       t.payout,
		HouseRevenue:      t.revenue,
		RTP:               rtp,
		WorkerCount:       t.workers,
		DurationMs:        o.now().Sub(t.startedAt).Milliseconds(),
		Breakdown:         t.breakdown,
	}
	if err := o.statsSink.Record(ctx, stats); err != nil {
		log.Error("hour_stats_record_failed", slog.String("error", err.Error()))
	}
}

// Refresh reloads the world and casino caches from committed state.
// The orchestrator calls it after every commit; servers call it at startup.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	w, err := o.world.Get(ctx)
	if err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	c, err := o.casino.Get(ctx)
	if err != nil {
		return fmt.Errorf("load casino state: %w", err)
	}
	o.worldCache.Store(*w)
	o.casinoCache.Store(*c)
	return nil
}
