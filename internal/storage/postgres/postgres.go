package postgres

import (
	"context"
	"errors"
	"fmt"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"casino-sim-lab/internal/money"
)

// Pool wraps pgxpool.Pool and the transaction manager bound to it.
type Pool struct {
	*pgxpool.Pool
	tm *manager.Manager
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	tm, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tx manager: %w", err)
	}

	return &Pool{Pool: pool, tm: tm}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// db returns the transaction carried by ctx, or the pool itself.
func (p *Pool) db(ctx context.Context) trmpgx.Tr {
	return trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, p.Pool)
}

// atomic runs fn in the transaction carried by ctx or in a new one.
func (p *Pool) atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.tm.Do(ctx, fn)
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation     = "23505" // unique_violation
	pgErrForeignKeyViolation = "23503" // foreign_key_violation
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	return err != nil && pgErrCode(err) == pgErrUniqueViolation
}

// isForeignKeyError checks if error is a missing referenced row.
func isForeignKeyError(err error) bool {
	return err != nil && pgErrCode(err) == pgErrForeignKeyViolation
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Amounts cross the driver as text. Selects cast NUMERIC columns with ::text
// and writes pass canonical strings cast back with ::numeric.

func amount(d decimal.Decimal) string {
	return money.Canonical(d)
}

func amounts(dst []*decimal.Decimal, src []string) error {
	for i, s := range src {
		d, err := money.Parse(s)
		if err != nil {
			return err
		}
		*dst[i] = d
	}
	return nil
}
