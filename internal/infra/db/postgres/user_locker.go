package postgres

import (
	"context"
	"hash/fnv"

	"github.com/jackc/pgx/v4"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.UserLocker = (*AdvisoryUserLocker)(nil)

// AdvisoryUserLocker takes a transaction-scoped advisory lock per user.
// The lock is released by commit or rollback.
type AdvisoryUserLocker struct{}

func NewAdvisoryUserLocker() *AdvisoryUserLocker { return &AdvisoryUserLocker{} }

func (AdvisoryUserLocker) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	t, ok := tx.(pgx.Tx)
	if !ok {
		return domain.ErrInvalidExecContext
	}
	if userID == "" {
		return domain.ErrInvalidArgument
	}
	if _, err := t.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userLockKey(userID)); err != nil {
		return mapPgError(err)
	}
	return nil
}

// userLockKey hashes a user id into the int64 key space of pg advisory locks.
func userLockKey(userID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("user:" + userID))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
