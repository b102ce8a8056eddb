// Package workerpool runs micro-bet loops for an hour across a small pool
// of goroutines. Each worker owns a task channel and a result channel; a
// supervisor fans chunks out and results back in, and the first failure
// cancels the rest.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"casino-sim-lab/internal/betting"
	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/rng"
	"casino-sim-lab/internal/slot"
)

// DefaultTaskTimeout bounds how long a single worker task may run.
const DefaultTaskTimeout = 5 * time.Minute

var (
	// ErrPoolClosed is returned by Execute and Shutdown after shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// ErrTaskTimeout is wrapped by WorkerError when a task exceeds its timeout.
	ErrTaskTimeout = errors.New("worker task timed out")

	// ErrMismatchedBatch is returned when players and sessions are not paired.
	ErrMismatchedBatch = errors.New("players and sessions are not paired")
)

// WorkerError names the worker, and when known the player, that failed.
type WorkerError struct {
	Worker   int
	PlayerID int64 // zero when the failure is not tied to a player
	Err      error
}

func (e *WorkerError) Error() string {
	if e.PlayerID != 0 {
		return fmt.Sprintf("worker %d failed on player %d: %v", e.Worker, e.PlayerID, e.Err)
	}
	return fmt.Sprintf("worker %d failed: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// SimulateFunc runs one player's hour. The default is betting.Run.
type SimulateFunc func(ctx context.Context, in betting.Input) (*betting.Outcome, error)

// Batch is one hour's worth of work. Players and Sessions are paired by index.
type Batch struct {
	Players    []*domain.Player
	Sessions   []*domain.Session
	GlobalSeed string
	Hour       int64
	HourStart  time.Time
}

// WorkerResult holds the outcomes produced by one worker, in chunk order.
type WorkerResult struct {
	Worker   int
	Outcomes []*betting.Outcome
	Duration time.Duration
}

type task struct {
	seq      uint64
	ctx      context.Context
	worker   int
	players  []*domain.Player
	sessions []*domain.Session
	seed     string
	hour     int64
	start    time.Time
}

type taskResult struct {
	seq uint64
	res *WorkerResult
	err error
}

type worker struct {
	index   int
	tasks   chan task
	results chan taskResult
}

// Pool is a fixed set of workers. Create one per tick and shut it down once.
type Pool struct {
	registry *slot.Registry
	simulate SimulateFunc
	timeout  time.Duration
	logger   *slog.Logger
	observe  func(worker int, d time.Duration)

	workers []*worker
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	seq    atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithSimulator replaces the per-player simulation.
func WithSimulator(fn SimulateFunc) Option {
	return func(p *Pool) { p.simulate = fn }
}

// WithTaskTimeout overrides DefaultTaskTimeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers a callback for completed task durations.
func WithObserver(fn func(worker int, d time.Duration)) Option {
	return func(p *Pool) { p.observe = fn }
}

// New starts size workers, 1 <= size <= MaxWorkers.
func New(size int, registry *slot.Registry, opts ...Option) (*Pool, error) {
	if size < 1 || size > MaxWorkers {
		return nil, fmt.Errorf("worker pool size %d outside [1,%d]", size, MaxWorkers)
	}
	if registry == nil {
		return nil, errors.New("worker pool requires a slot registry")
	}

	p := &Pool{
		registry: registry,
		simulate: betting.Run,
		timeout: DefaultTaskTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*worker, size)
	for i := range p.workers {
		w := &worker{
			index:   i,
			tasks:   make(chan task),
			results: make(chan taskResult, 1),
		}
		p.workers[i] = w
		p.wg.Add(1)
		go p.loop(w)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Execute partitions the batch across the workers and waits for every chunk.
// The first failure cancels in-flight chunks and discards all results.
func (p *Pool) Execute(ctx context.Context, b Batch) ([]WorkerResult, error) {
	if len(b.Players) != len(b.Sessions) {
		return nil, fmt.Errorf("%w: %d players, %d sessions", ErrMismatchedBatch, len(b.Players), len(b.Sessions))
	}
	for i, pl := range b.Players {
		s := b.Sessions[i]
		if pl == nil || s == nil {
			return nil, fmt.Errorf("%w: nil entry at index %d", ErrMismatchedBatch, i)
		}
		if s.PlayerID != pl.ID {
			return nil, fmt.Errorf("%w: session %d belongs to player %d, not %d",
				ErrMismatchedBatch, s.ID, s.PlayerID, pl.ID)
		}
	}

	// Shutdown waits for the read lock, so no task is sent on a closed channel.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	seq := p.seq.Add(1)

	chunks := Partition(len(b.Players), len(p.workers))
	results := make([]WorkerResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		w := p.workers[c.Worker]
		t := task{
			seq:      seq,
			worker:   c.Worker,
			players:  b.Players[c.Start:c.End],
			sessions: b.Sessions[c.Start:c.End],
			seed:     rng.WorkerSeed(b.GlobalSeed, c.Worker),
			hour:     b.Hour,
			start:    b.HourStart,
		}
		g.Go(func() error {
			res, err := p.dispatch(gctx, w, t)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dispatch sends t to w and waits for its result or the task deadline.
func (p *Pool) dispatch(ctx context.Context, w *worker, t task) (*WorkerResult, error) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	t.ctx = tctx

	select {
	case w.tasks <- t:
	case <-tctx.Done():
		return nil, p.deadlineError(tctx, w.index)
	}

	for {
		select {
		case r := <-w.results:
			if r.seq != t.seq {
				// left over from an abandoned call
				continue
			}
			if r.err != nil && tctx.Err() != nil {
				// the chunk stopped because of the deadline
				return nil, p.deadlineError(tctx, w.index)
			}
			return r.res, r.err
		case <-tctx.Done():
			return nil, p.deadlineError(tctx, w.index)
		}
	}
}

func (p *Pool) deadlineError(ctx context.Context, worker int) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &WorkerError{Worker: worker, Err: fmt.Errorf("%w after %s", ErrTaskTimeout, p.timeout)}
	}
	return &WorkerError{Worker: worker, Err: ctx.Err()}
}

func (p *Pool) loop(w *worker) {
	defer p.wg.Done()
	for t := range w.tasks {
		res, err := p.runChunk(t)
		select {
		case w.results <- taskResult{seq: t.seq, res: res, err: err}:
		default:
			// supervisor gave up and a stale result is still buffered
			select {
			case <-w.results:
			default:
			}
			w.results <- taskResult{seq: t.seq, res: res, err: err}
		}
	}
}

func (p *Pool) runChunk(t task) (res *WorkerResult, err error) {
	var current int64
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &WorkerError{Worker: t.worker, PlayerID: current, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	started := time.Now()
	out := &WorkerResult{Worker: t.worker, Outcomes: make([]*betting.Outcome, 0, len(t.players))}
	for j, player := range t.players {
		current = player.ID
		if err := t.ctx.Err(); err != nil {
			return nil, &WorkerError{Worker: t.worker, PlayerID: player.ID, Err: err}
		}

		session := t.sessions[j]
		model, err := p.registry.Get(string(session.Volatility))
		if err != nil {
			return nil, &WorkerError{Worker: t.worker, PlayerID: player.ID, Err: err}
		}

		outcome, err := p.simulate(t.ctx, betting.Input{
			Player:    player,
			SessionID: session.ID,
			Model:     model,
			Rng:       rng.New(rng.PlayerSeed(t.seed, player.ID)),
			Hour:      t.hour,
			HourStart: t.start,
		})
		if err != nil {
			return nil, &WorkerError{Worker: t.worker, PlayerID: player.ID, Err: err}
		}
		out.Outcomes = append(out.Outcomes, outcome)
	}

	out.Duration = time.Since(started)
	if p.observe != nil {
		p.observe(t.worker, out.Duration)
	}
	p.logger.Debug("worker_chunk_done",
		slog.Int("worker", t.worker),
		slog.Int("players", len(t.players)),
		slog.Duration("duration", out.Duration),
	)
	return out, nil
}

// Shutdown stops every worker and waits for in-flight chunks to finish.
// A second call returns ErrPoolClosed.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
