// Package memory provides in-memory implementations of the storage interfaces.
//
// All stores created from one DB share a set of tables. A transaction works on
// a private copy of the committed tables and swaps it in on commit, so readers
// outside the transaction never observe partial writes. Writers are serialized.
package memory

import (
	"context"
	"maps"
	"sync"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// tables is one consistent version of every table. Row pointers are treated
// as immutable: an update stores a fresh copy, so cloning a version only has
// to copy the maps.
type tables struct {
	players      map[int64]*domain.Player
	nextPlayerID int64

	sessions      map[int64]*domain.Session
	openByPlayer  map[int64]int64
	nextSessionID int64

	rounds      []domain.GameRound
	roundsByHr  map[int64]int64
	roundIDs    map[string]struct{} // committed ids, shared between versions
	newRoundIDs map[string]struct{} // ids added since the version was cloned

	world    *domain.WorldState
	casino   domain.CasinoState
	hourLogs map[int64]*domain.HourExecutionLog
}

func newTables() *tables {
	return &tables{
		players:      make(map[int64]*domain.Player),
		sessions:     make(map[int64]*domain.Session),
		openByPlayer: make(map[int64]int64),
		roundsByHr:   make(map[int64]int64),
		roundIDs:     make(map[string]struct{}),
		newRoundIDs:  make(map[string]struct{}),
		hourLogs:     make(map[int64]*domain.HourExecutionLog),
	}
}

func (t *tables) clone() *tables {
	c := *t
	c.players = maps.Clone(t.players)
	c.sessions = maps.Clone(t.sessions)
	c.openByPlayer = maps.Clone(t.openByPlayer)
	// appending to a capped slice always reallocates
	c.rounds = t.rounds[:len(t.rounds):len(t.rounds)]
	c.roundsByHr = maps.Clone(t.roundsByHr)
	c.newRoundIDs = maps.Clone(t.newRoundIDs)
	c.hourLogs = maps.Clone(t.hourLogs)
	return &c
}

func (t *tables) hasRoundID(id string) bool {
	if _, ok := t.roundIDs[id]; ok {
		return true
	}
	_, ok := t.newRoundIDs[id]
	return ok
}

// DB holds the committed tables.
type DB struct {
	mu        sync.RWMutex // guards committed
	committed *tables

	writeMu sync.Mutex // serializes transactions and autocommit writes
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{committed: newTables()}
}

type txKey struct{}

type txState struct {
	mu sync.Mutex
	t  *tables
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// commit publishes t as the committed version. Caller holds writeMu.
func (db *DB) commit(t *tables) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id := range t.newRoundIDs {
		t.roundIDs[id] = struct{}{}
	}
	t.newRoundIDs = make(map[string]struct{})
	db.committed = t
}

// read runs fn against the transaction's tables if ctx carries one,
// otherwise against the committed tables.
func (db *DB) read(ctx context.Context, fn func(t *tables) error) error {
	if st := txFrom(ctx); st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return fn(st.t)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.committed)
}

// write runs fn inside the transaction carried by ctx, or as its own
// autocommitted transaction. fn must not leave partial changes on error
// when running in autocommit mode; the working copy is discarded anyway.
func (db *DB) write(ctx context.Context, fn func(t *tables) error) error {
	if st := txFrom(ctx); st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return fn(st.t)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	work := db.committed.clone()
	if err := fn(work); err != nil {
		return err
	}
	db.commit(work)
	return nil
}

// Transactor implements storage.Transactor on a DB.
type Transactor struct {
	db *DB
}

// NewTransactor creates a transactor for db.
func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db}
}

var _ storage.Transactor = (*Transactor)(nil)

// WithinTx runs fn on a private copy of the tables and commits it if fn
// returns nil. A ctx that already carries a transaction joins it.
func (tx *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	db := tx.db
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	st := &txState{t: db.committed.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	db.commit(st.t)
	return nil
}

// WithinSavepoint runs fn on a copy of the current transaction's tables and
// folds it back on success. Without an enclosing transaction it behaves like WithinTx.
func (tx *Transactor) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	parent := txFrom(ctx)
	if parent == nil {
		return tx.WithinTx(ctx, fn)
	}

	parent.mu.Lock()
	nested := &txState{t: parent.t.clone()}
	parent.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, nested)); err != nil {
		return err
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	nested.mu.Lock()
	defer nested.mu.Unlock()
	parent.t = nested.t
	return nil
}

// Locker implements storage.Locker with a process-local mutex.
type Locker struct {
	mu sync.Mutex
}

// NewLocker creates an unlocked Locker.
func NewLocker() *Locker {
	return &Locker{}
}

var _ storage.Locker = (*Locker)(nil)

// TryLock acquires the lock or returns storage.ErrLocked.
func (l *Locker) TryLock(_ context.Context) (storage.Lock, error) {
	if !l.mu.TryLock() {
		return nil, storage.ErrLocked
	}
	return &heldLock{l: l}, nil
}

type heldLock struct {
	l    *Locker
	once sync.Once
}

func (h *heldLock) Release(_ context.Context) error {
	h.once.Do(h.l.mu.Unlock)
	return nil
}
