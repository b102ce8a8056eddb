package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-sim-lab/internal/betting"
	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/observability"
	"casino-sim-lab/internal/population"
	"casino-sim-lab/internal/rng"
	"casino-sim-lab/internal/slot"
	"casino-sim-lab/internal/storage"
	"casino-sim-lab/internal/storage/memory"
	"casino-sim-lab/internal/workerpool"
)

var simStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	players  *memory.PlayerStore
	sessions *memory.SessionStore
	rounds   *memory.RoundStore
	world    *memory.WorldStateStore
	casino   *memory.CasinoStateStore
	logs     *memory.HourLogStore
	stats    *memory.HourStatsStore
	tx       *memory.Transactor
	locker   *memory.Locker
	registry *slot.Registry
}

func newFixture(t *testing.T, players []*domain.Player) *fixture {
	t.Helper()
	ctx := context.Background()

	db := memory.NewDB()
	reg, err := slot.BuildDefault()
	require.NoError(t, err)

	f := &fixture{
		players:  memory.NewPlayerStore(db),
		sessions: memory.NewSessionStore(db),
		rounds:   memory.NewRoundStore(db),
		world:    memory.NewWorldStateStore(db),
		casino:   memory.NewCasinoStateStore(db),
		logs:     memory.NewHourLogStore(db),
		stats:    memory.NewHourStatsStore(),
		tx:       memory.NewTransactor(db),
		locker:   memory.NewLocker(),
		registry: reg,
	}

	require.NoError(t, f.world.Init(ctx, &domain.WorldState{
		MasterSeed:      "orchestrator-test",
		SimulationStart: simStart,
	}))
	require.NoError(t, f.players.InsertBulk(ctx, players))
	return f
}

func (f *fixture) options() Options {
	return Options{
		Players:    f.players,
		Sessions:   f.sessions,
		Rounds:     f.rounds,
		World:      f.world,
		Casino:     f.casino,
		HourLogs:   f.logs,
		Transactor: f.tx,
		Locker:     f.locker,
		Registry:   f.registry,
		StatsSink:  f.stats,
		Metrics:    observability.NewMetrics("test"),
	}
}

func (f *fixture) orchestrator(t *testing.T, mutate ...func(*Options)) *Orchestrator {
	t.Helper()
	opts := f.options()
	for _, m := range mutate {
		m(&opts)
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

// makePlayers builds n recreational players with reproducible DNA.
func makePlayers(t *testing.T, n int, status domain.PlayerStatus) []*domain.Player {
	t.Helper()
	out := make([]*domain.Player, n)
	for i := range out {
		dna, err := population.GenerateDNA(domain.ArchetypeRecreational, rng.New(fmt.Sprintf("dna-%d", i)))
		require.NoError(t, err)
		out[i] = &domain.Player{
			Archetype: domain.ArchetypeRecreational,
			Balance:   decimal.NewFromInt(100),
			Status:    status,
			DNA:       dna,
			CreatedAt: simStart,
		}
	}
	return out
}

func TestRunHourTick_ActivePlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 5, domain.PlayerStatusActive))
	o := f.orchestrator(t)

	summary, err := o.RunHourTick(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.Hour)
	assert.Equal(t, int64(1), summary.CurrentHour)
	assert.Equal(t, simStart, summary.SimulationTime)
	assert.Equal(t, 0, summary.SessionsTriggered)
	assert.Equal(t, 5, summary.PlayersProcessed)
	assert.Positive(t, summary.TotalSpins)
	assert.Equal(t, 5, summary.StatusBreakdown.Total())
	assert.Zero(t, summary.StatusBreakdown.Active, "every session ends within the hour")

	// Rounds persisted under hour 0.
	n, err := f.rounds.CountByHour(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalSpins, n)

	// Clock advanced with totals.
	w, err := f.world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.CurrentHour)
	assert.Equal(t, summary.TotalSpins, w.TotalSpins)
	assert.Equal(t, summary.HouseRevenue, w.TotalHouseRevenue.StringFixed(2))
	assert.True(t, w.TotalHouseRevenue.Equal(w.TotalWagered.Sub(w.TotalPayout)))

	// Audit row completed.
	entry, err := f.logs.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.HourStatusCompleted, entry.Status)
	assert.Equal(t, summary.RunID, entry.RunID)
	assert.Equal(t, 5, entry.PlayersProcessed)
	assert.Equal(t, summary.TotalSpins, entry.TotalSpins)

	// Sessions closed with per-player final balances.
	for id := int64(1); id <= 5; id++ {
		_, err := f.sessions.GetOpenByPlayer(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}

	// Caches and stats published after commit.
	ws, ok := o.WorldCache().Load()
	require.True(t, ok)
	assert.Equal(t, int64(1), ws.Value.CurrentHour)
	cs, ok := o.CasinoCache().Load()
	require.True(t, ok)
	assert.Equal(t, summary.TotalSpins, cs.Value.TotalSpins)
	assert.Equal(t, 5, cs.Value.ActivePlayers)

	stats := f.stats.List()
	require.Len(t, stats, 1)
	assert.Equal(t, summary.TotalSpins, stats[0].TotalSpins)
	assert.Equal(t, summary.RunID, stats[0].RunID)
}

func TestRunHourTick_Reproducible(t *testing.T) {
	ctx := context.Background()

	run := func() *Summary {
		f := newFixture(t, makePlayers(t, 5, domain.PlayerStatusActive))
		s, err := f.orchestrator(t).RunHourTick(ctx)
		require.NoError(t, err)
		return s
	}

	a, b := run(), run()
	assert.Equal(t, a.HouseRevenue, b.HouseRevenue)
	assert.Equal(t, a.TotalSpins, b.TotalSpins)
	assert.Equal(t, a.StatusBreakdown, b.StatusBreakdown)
}

func TestRunHourTick_NoActivePlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 3, domain.PlayerStatusBroke))

	summary, err := f.orchestrator(t).RunHourTick(ctx)
	require.NoError(t, err)

	assert.Contains(t, summary.Message, "no active players")
	assert.Zero(t, summary.PlayersProcessed)
	assert.Zero(t, summary.TotalSpins)
	assert.Equal(t, "0.00", summary.HouseRevenue)
	assert.Equal(t, 3, summary.StatusBreakdown.Broke)

	w, err := f.world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.CurrentHour)

	entry, err := f.logs.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.HourStatusCompleted, entry.Status)
}

func TestRunHourTick_ConsecutiveHours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 4, domain.PlayerStatusActive))
	o := f.orchestrator(t)

	for want := int64(0); want < 3; want++ {
		s, err := o.RunHourTick(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, s.Hour)
	}

	w, err := f.world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.CurrentHour)
	assert.Len(t, f.stats.List(), 3)
}

func TestRunHourTick_RejectsConcurrentTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 2, domain.PlayerStatusActive))

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	o := f.orchestrator(t, func(opts *Options) {
		opts.Simulate = func(ctx context.Context, in betting.Input) (*betting.Outcome, error) {
			once.Do(func() { close(started) })
			<-release
			return betting.Run(ctx, in)
		}
	})

	errs := make(chan error, 1)
	go func() {
		_, err := o.RunHourTick(ctx)
		errs <- err
	}()

	<-started
	_, err := o.RunHourTick(ctx)
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(release)
	require.NoError(t, <-errs)

	w, err := f.world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.CurrentHour, "exactly one tick committed")
}

func TestRunHourTick_RejectsWhileHourInProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 2, domain.PlayerStatusActive))

	_, err := f.logs.Start(ctx, 0, "stale-run")
	require.NoError(t, err)

	_, err = f.orchestrator(t).RunHourTick(ctx)
	assert.ErrorIs(t, err, ErrTickInProgress)

	w, err := f.world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.CurrentHour)
}

// slowRng sleeps before every roll.
type slowRng struct {
	rng.Rng
}

func (s slowRng) Random() float64 {
	time.Sleep(time.Millisecond)
	return s.Rng.Random()
}

func TestRunHourTick_TaskTimeoutReturnsPromptly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 1, domain.PlayerStatusActive))

	// A push model keeps the balance flat, so only the timeout ends the hour.
	reg, err := slot.Build([]slot.ModelConfig{
		{Name: "push", Outcomes: []slot.OutcomeConfig{{Key: "push", Probability: 1, Multiplier: 1}}},
	})
	require.NoError(t, err)
	push, err := reg.Get("push")
	require.NoError(t, err)

	o := f.orchestrator(t, func(opts *Options) {
		opts.TaskTimeout = 50 * time.Millisecond
		opts.Simulate = func(ctx context.Context, in betting.Input) (*betting.Outcome, error) {
			in.Model = push
			in.Rng = slowRng{Rng: in.Rng}
			in.Spins = 10_000
			return betting.Run(ctx, in)
		}
	})

	start := time.Now()
	_, err = o.RunHourTick(ctx)
	require.ErrorIs(t, err, workerpool.ErrTaskTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	entry, err := f.logs.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.HourStatusFailed, entry.Status)
}

func TestRunHourTick_WorkerFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, makePlayers(t, 4, domain.PlayerStatusActive))

	boom := errors.New("simulated crash")
	failing := f.orchestrator(t, func(opts *Options) {
		opts.Simulate = func(ctx context.Context, in betting.Input) (*betting.Outcome, error) {
			if in.Player.ID == 3 {
				return nil, boom
			}
			return betting.Run(ctx, in)
		}
	})

	_, err := failing.RunHourTick(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTickInProgress)

	// Nothing from the failed hour is visible.
	n, err := f.rounds.CountByHour(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	w, err := f.world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.CurrentHour)

	for id := int64(1); id <= 4; id++ {
		p, err := f.players.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Balance.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, domain.PlayerStatusActive, p.Status)

		_, err = f.sessions.GetOpenByPlayer(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound, "session creation rolled back")
	}

	entry, err := f.logs.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.HourStatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "simulated crash")

	_, ok := failing.WorldCache().Load()
	assert.False(t, ok, "caches untouched on failure")

	// The lock was released and the failed hour can be retried.
	s, err := f.orchestrator(t).RunHourTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Hour)

	entry, err = f.logs.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.HourStatusCompleted, entry.Status)
	assert.Equal(t, 2, entry.Attempt)
}

// flakyPlayers fails UpdateStatus for one player.
type flakyPlayers struct {
	storage.PlayerStore
	failID int64
}

func (s *flakyPlayers) UpdateStatus(ctx context.Context, id int64, status domain.PlayerStatus) error {
	if id == s.failID {
		return errors.New("update rejected")
	}
	return s.PlayerStore.UpdateStatus(ctx, id, status)
}

func TestRunHourTick_TriggerFailureIsIsolated(t *testing.T) {
	ctx := context.Background()

	players := makePlayers(t, 3, domain.PlayerStatusIdle)
	for _, p := range players {
		p.DNA.ReturnProbability = 1
	}
	f := newFixture(t, players)

	o := f.orchestrator(t, func(opts *Options) {
		opts.Players = &flakyPlayers{PlayerStore: f.players, failID: 2}
	})

	s, err := o.RunHourTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.SessionsTriggered)
	assert.Equal(t, 2, s.PlayersProcessed)

	p, err := f.players.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStatusIdle, p.Status)
	assert.True(t, p.Balance.Equal(decimal.NewFromInt(100)))
}

func TestRunHourTick_IdlePlayersWithZeroReturnStayIdle(t *testing.T) {
	ctx := context.Background()

	players := makePlayers(t, 3, domain.PlayerStatusIdle)
	for _, p := range players {
		p.DNA.ReturnProbability = 0
	}
	f := newFixture(t, players)

	s, err := f.orchestrator(t).RunHourTick(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.SessionsTriggered)
	assert.Equal(t, 3, s.StatusBreakdown.Idle)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)
	o := f.orchestrator(t)

	_, ok := o.WorldCache().Load()
	require.False(t, ok)

	require.NoError(t, o.Refresh(context.Background()))
	ws, ok := o.WorldCache().Load()
	require.True(t, ok)
	assert.Equal(t, "orchestrator-test", ws.Value.MasterSeed)
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing players", func(o *Options) { o.Players = nil }},
		{"missing transactor", func(o *Options) { o.Transactor = nil }},
		{"missing locker", func(o *Options) { o.Locker = nil }},
		{"missing registry", func(o *Options) { o.Registry = nil }},
		{"min above max", func(o *Options) { o.MinWorkers, o.MaxWorkers = 4, 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := f.options()
			tt.mutate(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}
