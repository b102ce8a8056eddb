package workerpool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-sim-lab/internal/betting"
	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/rng"
	"casino-sim-lab/internal/slot"
)

var hourStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func registry(t *testing.T) *slot.Registry {
	t.Helper()
	reg, err := slot.BuildDefault()
	require.NoError(t, err)
	return reg
}

func makeBatch(n int) Batch {
	b := Batch{GlobalSeed: "test-hour-1", Hour: 1, HourStart: hourStart}
	for i := 1; i <= n; i++ {
		id := int64(i)
		b.Players = append(b.Players, &domain.Player{
			ID:        id,
			Archetype: domain.ArchetypeRecreational,
			Balance:   decimal.NewFromInt(200),
			Status:    domain.PlayerStatusActive,
			DNA: domain.DNA{
				RiskAppetite:        0.3,
				BetFlexibility:      0.5,
				StopLossLimit:       0.5,
				PreferredVolatility: domain.VolatilityMedium,
			},
		})
		b.Sessions = append(b.Sessions, &domain.Session{
			ID:         id + 1000,
			PlayerID:   id,
			Volatility: domain.VolatilityMedium,
		})
	}
	return b
}

func newPool(t *testing.T, size int, opts ...Option) *Pool {
	t.Helper()
	p, err := New(size, registry(t), opts...)
	require.NoError(t, err)
	return p
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		n, min, max int
		want        int
	}{
		{0, 1, 4, 1},
		{250, 1, 4, 1},
		{251, 1, 4, 2},
		{500, 1, 4, 2},
		{501, 1, 4, 3},
		{750, 1, 4, 3},
		{751, 1, 4, 4},
		{100000, 1, 4, 4},
		{100000, 1, 2, 2},
		{10, 3, 4, 3},
		{10, 0, 0, 1},
		{1000, 1, 9, 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,min=%d,max=%d", tt.n, tt.min, tt.max), func(t *testing.T) {
			assert.Equal(t, tt.want, WorkerCount(tt.n, tt.min, tt.max))
		})
	}
}

func TestPartition_Coverage(t *testing.T) {
	for n := 0; n <= 40; n++ {
		for k := 1; k <= MaxWorkers; k++ {
			chunks := Partition(n, k)
			covered := 0
			next := 0
			for _, c := range chunks {
				require.Equal(t, next, c.Start, "n=%d k=%d", n, k)
				require.Positive(t, c.Len(), "n=%d k=%d", n, k)
				require.LessOrEqual(t, c.Len(), (n+k-1)/k)
				covered += c.Len()
				next = c.End
			}
			require.Equal(t, n, covered, "n=%d k=%d", n, k)
			require.LessOrEqual(t, len(chunks), k)
		}
	}
}

func TestExecute_EveryPlayerOnce(t *testing.T) {
	const n = 600
	p := newPool(t, WorkerCount(n, 1, 4))
	defer p.Shutdown()
	require.Equal(t, 3, p.Size())

	results, err := p.Execute(context.Background(), makeBatch(n))
	require.NoError(t, err)
	require.Len(t, results, 3)

	seen := make(map[int64]int)
	total := 0
	for i, r := range results {
		assert.Equal(t, i, r.Worker)
		total += len(r.Outcomes)
		for _, o := range r.Outcomes {
			seen[o.PlayerID]++
			assert.Equal(t, o.PlayerID+1000, o.SessionID)
		}
	}
	assert.Equal(t, n, total)
	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "player %d", id)
	}
}

func TestExecute_Deterministic(t *testing.T) {
	run := func() []WorkerResult {
		p := newPool(t, 2)
		defer p.Shutdown()
		res, err := p.Execute(context.Background(), makeBatch(40))
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	require.Len(t, b, len(a))
	for i := range a {
		require.Len(t, b[i].Outcomes, len(a[i].Outcomes))
		for j := range a[i].Outcomes {
			assert.True(t, a[i].Outcomes[j].FinalBalance.Equal(b[i].Outcomes[j].FinalBalance))
			assert.Equal(t, len(a[i].Outcomes[j].Rounds), len(b[i].Outcomes[j].Rounds))
		}
	}
}

func TestExecute_Empty(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	res, err := p.Execute(context.Background(), Batch{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestExecute_Mismatched(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	b := makeBatch(3)
	b.Sessions = b.Sessions[:2]
	_, err := p.Execute(context.Background(), b)
	require.ErrorIs(t, err, ErrMismatchedBatch)

	b = makeBatch(3)
	b.Sessions[1].PlayerID = 99
	_, err = p.Execute(context.Background(), b)
	require.ErrorIs(t, err, ErrMismatchedBatch)
}

func TestExecute_WorkerFailureNamesPlayer(t *testing.T) {
	boom := errors.New("boom")
	p := newPool(t, 4, WithSimulator(func(ctx context.Context, in betting.Input) (*betting.Outcome, error) {
		if in.Player.ID == 17 {
			return nil, boom
		}
		return betting.Run(ctx, in)
	}))
	defer p.Shutdown()

	_, err := p.Execute(context.Background(), makeBatch(40))
	require.Error(t, err)
	require.ErrorIs(t, err, boom)

	var we *WorkerError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, int64(17), we.PlayerID)
	assert.Equal(t, 1, we.Worker) // chunks of 10: player 17 is in the second
	assert.Contains(t, err.Error(), "worker 1 failed on player 17")
}

func TestExecute_UnknownSlotModel(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	b := makeBatch(2)
	b.Sessions[1].Volatility = "extreme"
	_, err := p.Execute(context.Background(), b)
	require.ErrorIs(t, err, slot.ErrUnknownModel)
}

func TestExecute_Timeout(t *testing.T) {
	p := newPool(t, 2,
		WithTaskTimeout(50*time.Millisecond),
		WithSimulator(func(ctx context.Context, in betting.Input) (*betting.Outcome, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)
	defer p.Shutdown()

	start := time.Now()
	_, err := p.Execute(context.Background(), makeBatch(4))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var we *WorkerError
	require.True(t, errors.As(err, &we))
	assert.True(t, errors.Is(err, ErrTaskTimeout) || errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

// slowRng sleeps before every roll.
type slowRng struct {
	rng.Rng
	delay time.Duration
}

func (s slowRng) Random() float64 {
	time.Sleep(s.delay)
	return s.Rng.Random()
}

// pushModel returns a model whose every spin gives the wager back.
func pushModel(t *testing.T) *slot.Model {
	t.Helper()
	reg, err := slot.Build([]slot.ModelConfig{
		{Name: "push", Outcomes: []slot.OutcomeConfig{{Key: "push", Probability: 1, Multiplier: 1}}},
	})
	require.NoError(t, err)
	m, err := reg.Get("push")
	require.NoError(t, err)
	return m
}

func TestExecute_TimeoutStopsSimulation(t *testing.T) {
	push := pushModel(t)
	p := newPool(t, 1,
		WithTaskTimeout(50*time.Millisecond),
		WithSimulator(func(ctx context.Context, in betting.Input) (*betting.Outcome, error) {
			in.Model = push
			in.Rng = slowRng{Rng: in.Rng, delay: time.Millisecond}
			in.Spins = 10_000
			return betting.Run(ctx, in)
		}),
	)

	start := time.Now()
	_, err := p.Execute(context.Background(), makeBatch(1))
	require.ErrorIs(t, err, ErrTaskTimeout)
	require.NoError(t, p.Shutdown())
	assert.Less(t, time.Since(start), 2*time.Second, "shutdown waited for the whole hour")
}

func TestExecute_CancelledContext(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Execute(ctx, makeBatch(5))
	require.ErrorIs(t, err, context.Canceled)
}

func TestShutdown_Once(t *testing.T) {
	p := newPool(t, 2)
	require.NoError(t, p.Shutdown())
	assert.ErrorIs(t, p.Shutdown(), ErrPoolClosed)

	_, err := p.Execute(context.Background(), makeBatch(1))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, registry(t))
	assert.Error(t, err)
	_, err = New(5, registry(t))
	assert.Error(t, err)
	_, err = New(1, nil)
	assert.Error(t, err)
}

func TestObserver(t *testing.T) {
	calls := make(chan int, 4)
	p := newPool(t, 2, WithObserver(func(worker int, _ time.Duration) { calls <- worker }))
	defer p.Shutdown()

	_, err := p.Execute(context.Background(), makeBatch(10))
	require.NoError(t, err)
	assert.Len(t, calls, 2)
}
