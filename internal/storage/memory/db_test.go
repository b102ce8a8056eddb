package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newPlayer(balance int64) *domain.Player {
	return &domain.Player{
		Archetype: domain.ArchetypeRecreational,
		Balance:   decimal.NewFromInt(balance),
		Status:    domain.PlayerStatusIdle,
		DNA:       domain.DNA{Version: domain.DNAVersion, PreferredVolatility: domain.VolatilityLow},
		CreatedAt: t0,
	}
}

func round(id string, hour, session int64, spin int) domain.GameRound {
	return domain.GameRound{
		RoundID:        id,
		SessionID:      session,
		PlayerID:       1,
		SimulationHour: hour,
		SpinIndex:      spin,
		Outcome:        "Lose",
		BetAmount:      decimal.NewFromInt(1),
		Payout:         decimal.Zero,
		BalanceAfter:   decimal.NewFromInt(9),
		OccurredAt:     t0,
	}
}

func TestWithinTx_CommitAndRollback(t *testing.T) {
	db := NewDB()
	tx := NewTransactor(db)
	players := NewPlayerStore(db)
	ctx := context.Background()

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		return players.Insert(ctx, newPlayer(100))
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, players.Insert(ctx, newPlayer(50)))
		require.NoError(t, players.UpdateStatus(ctx, 1, domain.PlayerStatusBroke))
		return boom
	})
	require.ErrorIs(t, err, boom)

	counts, err := players.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBreakdown{Idle: 1}, counts)

	p, err := players.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStatusIdle, p.Status)
}

func TestWithinTx_IsolatedFromReaders(t *testing.T) {
	db := NewDB()
	tx := NewTransactor(db)
	players := NewPlayerStore(db)
	ctx := context.Background()

	require.NoError(t, players.Insert(ctx, newPlayer(100)))

	err := tx.WithinTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, players.UpdateStatus(txCtx, 1, domain.PlayerStatusActive))

		inside, err := players.GetByID(txCtx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.PlayerStatusActive, inside.Status)

		outside, err := players.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.PlayerStatusIdle, outside.Status)
		return nil
	})
	require.NoError(t, err)

	after, err := players.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStatusActive, after.Status)
}

func TestWithinSavepoint_RollsBackOnlyNested(t *testing.T) {
	db := NewDB()
	tx := NewTransactor(db)
	players := NewPlayerStore(db)
	ctx := context.Background()

	require.NoError(t, players.InsertBulk(ctx, []*domain.Player{newPlayer(10), newPlayer(20)}))

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, tx.WithinSavepoint(ctx, func(ctx context.Context) error {
			return players.UpdateStatus(ctx, 1, domain.PlayerStatusActive)
		}))

		err := tx.WithinSavepoint(ctx, func(ctx context.Context) error {
			require.NoError(t, players.UpdateStatus(ctx, 2, domain.PlayerStatusActive))
			return errors.New("nested failure")
		})
		require.Error(t, err)
		return nil
	})
	require.NoError(t, err)

	p1, _ := players.GetByID(ctx, 1)
	p2, _ := players.GetByID(ctx, 2)
	assert.Equal(t, domain.PlayerStatusActive, p1.Status)
	assert.Equal(t, domain.PlayerStatusIdle, p2.Status)
}

func TestRoundStore_DuplicateAcrossTransactions(t *testing.T) {
	db := NewDB()
	tx := NewTransactor(db)
	rounds := NewRoundStore(db)
	ctx := context.Background()

	require.NoError(t, rounds.InsertBatch(ctx, []domain.GameRound{round("a", 1, 7, 0), round("b", 1, 7, 1)}))

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, rounds.InsertBatch(ctx, []domain.GameRound{round("c", 2, 7, 0)}))
		return rounds.InsertBatch(ctx, []domain.GameRound{round("a", 2, 7, 1)})
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = rounds.InsertBatch(ctx, []domain.GameRound{round("d", 2, 7, 0), round("d", 2, 7, 1)})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// c was rolled back with its transaction
	require.NoError(t, rounds.InsertBatch(ctx, []domain.GameRound{round("c", 2, 7, 0)}))

	n, err := rounds.CountByHour(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, _ = rounds.CountByHour(ctx, 2)
	assert.Equal(t, int64(1), n)

	got, err := rounds.GetBySession(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].RoundID, got[1].RoundID, got[2].RoundID})
}

func TestSessionStore_Lifecycle(t *testing.T) {
	db := NewDB()
	players := NewPlayerStore(db)
	sessions := NewSessionStore(db)
	ctx := context.Background()

	require.NoError(t, players.Insert(ctx, newPlayer(100)))

	_, err := sessions.GetOpenByPlayer(ctx, 1)
	require.ErrorIs(t, err, storage.ErrNotFound)

	s := &domain.Session{PlayerID: 1, StartedAt: t0, InitialBalance: decimal.NewFromInt(100), Volatility: domain.VolatilityLow}
	require.NoError(t, sessions.Create(ctx, s))
	assert.Equal(t, int64(1), s.ID)

	dup := &domain.Session{PlayerID: 1, StartedAt: t0, InitialBalance: decimal.NewFromInt(100)}
	require.ErrorIs(t, sessions.Create(ctx, dup), storage.ErrDuplicateKey)

	open, err := sessions.GetOpenByPlayer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, s.ID, open.ID)

	closes := []domain.SessionClose{{SessionID: s.ID, FinalBalance: decimal.NewFromInt(80), EndedAt: t0.Add(time.Hour)}}
	require.NoError(t, sessions.CloseBulk(ctx, closes))
	require.ErrorIs(t, sessions.CloseBulk(ctx, closes), storage.ErrConflict)

	closed, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.FinalBalance)
	assert.Equal(t, "80", closed.FinalBalance.String())
	assert.False(t, closed.Open())

	_, err = sessions.GetOpenByPlayer(ctx, 1)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlayerStore_ApplyUpdates(t *testing.T) {
	db := NewDB()
	players := NewPlayerStore(db)
	ctx := context.Background()

	require.NoError(t, players.InsertBulk(ctx, []*domain.Player{newPlayer(100), newPlayer(100)}))

	err := players.ApplyUpdates(ctx, []domain.PlayerUpdate{
		{PlayerID: 1, Balance: decimal.NewFromInt(0), Status: domain.PlayerStatusBroke, ProfitAndLoss: decimal.NewFromInt(-100)},
		{PlayerID: 2, Balance: decimal.NewFromInt(130), Status: domain.PlayerStatusIdle, ProfitAndLoss: decimal.NewFromInt(30)},
	})
	require.NoError(t, err)

	err = players.ApplyUpdates(ctx, []domain.PlayerUpdate{
		{PlayerID: 2, Balance: decimal.NewFromInt(1), Status: domain.PlayerStatusIdle},
		{PlayerID: 99, Balance: decimal.NewFromInt(1), Status: domain.PlayerStatusIdle},
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	p2, err := players.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "130", p2.Balance.String())
	assert.Equal(t, "30", p2.LifetimePnL.String())

	broke, err := players.ListByStatus(ctx, domain.PlayerStatusBroke)
	require.NoError(t, err)
	require.Len(t, broke, 1)
	assert.Equal(t, int64(1), broke[0].ID)
}

func TestPlayerStore_CopyOnRead(t *testing.T) {
	db := NewDB()
	players := NewPlayerStore(db)
	ctx := context.Background()

	p := newPlayer(100)
	require.NoError(t, players.Insert(ctx, p))
	p.Status = domain.PlayerStatusBroke

	got, err := players.GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.Balance = decimal.Zero

	again, _ := players.GetByID(ctx, p.ID)
	assert.Equal(t, domain.PlayerStatusIdle, again.Status)
	assert.Equal(t, "100", again.Balance.String())
}

func TestWorldStateStore_Advance(t *testing.T) {
	db := NewDB()
	world := NewWorldStateStore(db)
	ctx := context.Background()

	_, err := world.Get(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, world.Init(ctx, &domain.WorldState{MasterSeed: "seed", SimulationStart: t0}))
	require.ErrorIs(t, world.Init(ctx, &domain.WorldState{MasterSeed: "seed"}), storage.ErrDuplicateKey)

	delta := domain.WorldDelta{Spins: 10, Wagered: decimal.NewFromInt(20), Payout: decimal.NewFromInt(15), HouseRevenue: decimal.NewFromInt(5)}
	require.NoError(t, world.Advance(ctx, 0, delta))
	require.ErrorIs(t, world.Advance(ctx, 0, delta), storage.ErrConflict)

	w, err := world.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.CurrentHour)
	assert.Equal(t, int64(10), w.TotalSpins)
	assert.Equal(t, "5", w.TotalHouseRevenue.String())
}

func TestCasinoStateStore_Apply(t *testing.T) {
	db := NewDB()
	casino := NewCasinoStateStore(db)
	ctx := context.Background()

	st, err := casino.Get(ctx)
	require.NoError(t, err)
	assert.True(t, st.HouseRevenue.IsZero())

	require.NoError(t, casino.Apply(ctx, domain.CasinoDelta{HouseRevenue: decimal.NewFromFloat(2.5), ActivePlayers: 4, Spins: 30}))
	require.NoError(t, casino.Apply(ctx, domain.CasinoDelta{HouseRevenue: decimal.NewFromFloat(-1), ActivePlayers: 2, Spins: 10}))

	st, err = casino.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", st.HouseRevenue.String())
	assert.Equal(t, 2, st.ActivePlayers)
	assert.Equal(t, int64(40), st.TotalSpins)
}

func TestHourLogStore_Attempts(t *testing.T) {
	db := NewDB()
	logs := NewHourLogStore(db)
	ctx := context.Background()

	row, err := logs.Start(ctx, 3, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Attempt)

	busy, err := logs.HasInProgress(ctx)
	require.NoError(t, err)
	assert.True(t, busy)

	_, err = logs.Start(ctx, 3, "run-2")
	require.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, logs.Fail(ctx, 3, "run-1", "worker 0 failed"))
	busy, _ = logs.HasInProgress(ctx)
	assert.False(t, busy)

	row, err = logs.Start(ctx, 3, "run-2")
	require.NoError(t, err)
	assert.Equal(t, 2, row.Attempt)
	assert.Equal(t, "run-2", row.RunID)

	require.NoError(t, logs.Complete(ctx, 3, domain.HourCompletion{PlayersProcessed: 5, TotalSpins: 100, FinishedAt: t0}))
	require.ErrorIs(t, logs.Complete(ctx, 3, domain.HourCompletion{}), storage.ErrNotFound)
	require.ErrorIs(t, logs.Fail(ctx, 3, "run-3", "late"), storage.ErrConflict)

	got, err := logs.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.HourStatusCompleted, got.Status)
	assert.Equal(t, 5, got.PlayersProcessed)
	assert.Empty(t, got.ErrorMessage)

	_, err = logs.Get(ctx, 4)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocker_TryLock(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	lock, err := l.TryLock(ctx)
	require.NoError(t, err)

	_, err = l.TryLock(ctx)
	require.ErrorIs(t, err, storage.ErrLocked)

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))

	again, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestConcurrentReadsDuringTx(t *testing.T) {
	db := NewDB()
	tx := NewTransactor(db)
	players := NewPlayerStore(db)
	ctx := context.Background()

	require.NoError(t, players.Insert(ctx, newPlayer(100)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := players.CountByStatus(ctx); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		status := domain.PlayerStatusIdle
		if i%2 == 0 {
			status = domain.PlayerStatusActive
		}
		require.NoError(t, tx.WithinTx(ctx, func(ctx context.Context) error {
			return players.UpdateStatus(ctx, 1, status)
		}))
	}
	close(stop)
	wg.Wait()
}
