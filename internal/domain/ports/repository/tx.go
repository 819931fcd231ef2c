package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories MUST accept a nil Tx and fall back to the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction. A non-nil error from fn rolls back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// UserLocker serializes subscription mutations of one user for the lifetime of tx.
type UserLocker interface {
	LockUser(ctx context.Context, tx Tx, userID string) error
}
