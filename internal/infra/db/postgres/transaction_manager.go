package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sethvargo/go-retry"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager for Postgres (pgx).
// The tx handle reaches fn as a pgx.Tx.
type TxManager struct {
	pool    *pgxpool.Pool
	retries uint64
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, retries: 2}
}

// WithTx opens a DB transaction and passes the tx handle to fn.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
// Serializable transactions that lose a conflict are re-run, so fn must not
// perform side effects outside the database.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if txOpt.IsoLevel != pgx.Serializable || m.retries == 0 {
		return m.runTx(ctx, txOpt, fn)
	}
	var lastErr error
	b := retry.WithMaxRetries(m.retries, retry.WithJitter(5*time.Millisecond, retry.NewExponential(10*time.Millisecond)))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		lastErr = m.runTx(ctx, txOpt, fn)
		if isSerializationFailure(lastErr) {
			return retry.RetryableError(lastErr)
		}
		return lastErr
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func (m *TxManager) runTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func inTx(tx repository.Tx) bool {
	_, ok := tx.(pgx.Tx)
	return ok
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...any) (pgx.Row, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, sql, args...), nil
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...any) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	tag, err := ex.Exec(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	return tag, nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...any) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	return rows, nil
}

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"

	activeSubscriptionIndex = "subscriptions_one_active_per_user"
)

// ErrSerialization reports a serializable transaction that lost a conflict; callers may retry.
var ErrSerialization = errors.New("serialization failure")

// mapPgError turns driver errors into domain errors. Unknown errors are wrapped
// with ErrOperationFailed so the cause stays inspectable.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == activeSubscriptionIndex {
				return domain.ErrActiveSubscriptionExists
			}
			return domain.ErrAlreadyExists
		case pgForeignKeyViolation:
			return domain.ErrNotFound
		case pgSerializationFailure:
			return ErrSerialization
		}
	}
	return errors.Join(domain.ErrOperationFailed, err)
}

func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSerialization) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}

// scanOne maps pgx.ErrNoRows to domain.ErrNotFound.
func scanOne(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return errors.Join(domain.ErrReadDatabaseRow, err)
}
