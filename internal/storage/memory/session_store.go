package memory

import (
	"context"

	"casino-sim-lab/internal/domain"
	"casino-sim-lab/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a session store on db.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

var _ storage.SessionStore = (*SessionStore)(nil)

// Create inserts a new open session and assigns its ID.
// A player can hold at most one open session.
func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess == nil || !sess.Open() || sess.PlayerID == 0 || sess.InitialBalance.IsNegative() {
		return storage.ErrInvalidInput
	}

	return s.db.write(ctx, func(t *tables) error {
		if _, ok := t.players[sess.PlayerID]; !ok {
			return storage.ErrNotFound
		}
		if _, ok := t.openByPlayer[sess.PlayerID]; ok {
			return storage.ErrDuplicateKey
		}
		t.nextSessionID++
		sess.ID = t.nextSessionID
		t.sessions[sess.ID] = sess.Clone()
		t.openByPlayer[sess.PlayerID] = sess.ID
		return nil
	})
}

// GetOpenByPlayer returns the player's open session. Returns ErrNotFound if none.
func (s *SessionStore) GetOpenByPlayer(ctx context.Context, playerID int64) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.read(ctx, func(t *tables) error {
		id, ok := t.openByPlayer[playerID]
		if !ok {
			return storage.ErrNotFound
		}
		out = t.sessions[id].Clone()
		return nil
	})
	return out, err
}

// GetByID retrieves a session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.read(ctx, func(t *tables) error {
		sess, ok := t.sessions[id]
		if !ok {
			return storage.ErrNotFound
		}
		out = sess.Clone()
		return nil
	})
	return out, err
}

// CloseBulk closes open sessions. Unknown or already closed sessions fail the whole call.
func (s *SessionStore) CloseBulk(ctx context.Context, closes []domain.SessionClose) error {
	return s.db.write(ctx, func(t *tables) error {
		for _, c := range closes {
			sess, ok := t.sessions[c.SessionID]
			if !ok {
				return storage.ErrNotFound
			}
			if !sess.Open() {
				return storage.ErrConflict
			}
		}
		for _, c := range closes {
			sess := t.sessions[c.SessionID].Clone()
			ended := c.EndedAt
			final := c.FinalBalance
			sess.EndedAt = &ended
			sess.FinalBalance = &final
			t.sessions[sess.ID] = sess
			delete(t.openByPlayer, sess.PlayerID)
		}
		return nil
	})
}
