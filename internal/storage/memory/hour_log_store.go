package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// HourLogStore is an in-memory implementation of storage.HourLogStore.
type HourLogStore struct {
	db  *DB
	now func() time.Time
}

// NewHourLogStore creates an hour log store on db.
func NewHourLogStore(db *DB) *HourLogStore {
	return &HourLogStore{db: db, now: time.Now}
}

var _ storage.HourLogStore = (*HourLogStore)(nil)

// Start records an in_progress attempt for hour.
func (s *HourLogStore) Start(ctx context.Context, hour int64, runID string) (*domain.HourExecutionLog, error) {
	if hour < 0 || runID == "" {
		return nil, storage.ErrInvalidInput
	}

	var out domain.HourExecutionLog
	err := s.db.write(ctx, func(t *tables) error {
		attempt := 1
		if prev, ok := t.hourLogs[hour]; ok {
			if prev.Status != domain.HourStatusFailed {
				return storage.ErrConflict
			}
			attempt = prev.Attempt + 1
		}
		out = domain.HourExecutionLog{
			Hour:      hour,
			RunID:     runID,
			Status:    domain.HourStatusInProgress,
			Attempt:   attempt,
			StartedAt: s.now().UTC(),
		}
		row := out
		t.hourLogs[hour] = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// HasInProgress reports whether any hour is still in_progress.
func (s *HourLogStore) HasInProgress(ctx context.Context) (bool, error) {
	var found bool
	err := s.db.read(ctx, func(t *tables) error {
		for _, l := range t.hourLogs {
			if l.Status == domain.HourStatusInProgress {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// Complete marks hour completed with its counters.
func (s *HourLogStore) Complete(ctx context.Context, hour int64, c domain.HourCompletion) error {
	return s.db.write(ctx, func(t *tables) error {
		prev, ok := t.hourLogs[hour]
		if !ok || prev.Status != domain.HourStatusInProgress {
			return storage.ErrNotFound
		}
		row := *prev
		finished := c.FinishedAt
		row.Status = domain.HourStatusCompleted
		row.FinishedAt = &finished
		row.SessionsTriggered = c.SessionsTriggered
		row.PlayersProcessed = c.PlayersProcessed
		row.TotalSpins = c.TotalSpins
		row.HouseRevenue = c.HouseRevenue
		t.hourLogs[hour] = &row
		return nil
	})
}

// Fail marks hour failed, creating the row if needed. A completed hour is left untouched.
func (s *HourLogStore) Fail(ctx context.Context, hour int64, runID, message string) error {
	return s.db.write(ctx, func(t *tables) error {
		now := s.now().UTC()
		row := domain.HourExecutionLog{Hour: hour, RunID: runID, Attempt: 1, StartedAt: now}
		if prev, ok := t.hourLogs[hour]; ok {
			if prev.Status == domain.HourStatusCompleted {
				return storage.ErrConflict
			}
			row = *prev
		}
		row.Status = domain.HourStatusFailed
		row.FinishedAt = &now
		row.ErrorMessage = message
		t.hourLogs[hour] = &row
		return nil
	})
}

// Get retrieves the audit row for hour. Returns ErrNotFound if not exists.
func (s *HourLogStore) Get(ctx context.Context, hour int64) (*domain.HourExecutionLog, error) {
	var out domain.HourExecutionLog
	err := s.db.read(ctx, func(t *tables) error {
		l, ok := t.hourLogs[hour]
		if !ok {
			return storage.ErrNotFound
		}
		out = *l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// HourStatsStore collects published hour statistics. It implements
// storage.HourStatsSink and is not transactional.
type HourStatsStore struct {
	mu   sync.RWMutex
	data map[int64]domain.HourStats
}

// NewHourStatsStore creates an empty stats store.
func NewHourStatsStore() *HourStatsStore {
	return &HourStatsStore{data: make(map[int64]domain.HourStats)}
}

var _ storage.HourStatsSink = (*HourStatsStore)(nil)

// Record stores s, replacing an earlier record for the same hour.
func (s *HourStatsStore) Record(_ context.Context, st *domain.HourStats) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[st.Hour] = *st
	return nil
}

// List returns all records ordered by hour.
func (s *HourStatsStore) List() []domain.HourStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.HourStats, 0, len(s.data))
	for _, st := range s.data {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out
}
