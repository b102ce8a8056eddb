package postgres

import (
	"context"

	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/settings"

	"casino-sim-lab/internal/storage"
)

// Transactor implements storage.Transactor with the pool's transaction manager.
// Stores built on the same Pool pick the transaction up from ctx.
type Transactor struct {
	pool   *Pool
	nested trm.Settings
}

// NewTransactor creates a Transactor for pool.
func NewTransactor(pool *Pool) *Transactor {
	return &Transactor{
		pool:   pool,
		nested: settings.Must(settings.WithPropagation(trm.PropagationNested)),
	}
}

var _ storage.Transactor = (*Transactor)(nil)

// WithinTx runs fn in a transaction, joining the one in ctx if present.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.pool.tm.Do(ctx, fn)
}

// WithinSavepoint runs fn under a SAVEPOINT of the current transaction.
func (t *Transactor) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.pool.tm.DoWithSettings(ctx, t.nested, fn)
}
