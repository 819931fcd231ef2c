package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.OutboxRepository = (*outboxRepo)(nil)

type outboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) repository.OutboxRepository {
	return &outboxRepo{pool: pool}
}

func (r *outboxRepo) Enqueue(ctx context.Context, tx repository.Tx, m *model.OutboxMessage) error {
	const q = `
INSERT INTO outbox (id, kind, payload, attempts, next_attempt_at, created_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6);`
	if _, err := execSQL(ctx, r.pool, tx, q, m.ID, string(m.Kind), string(m.Payload), m.Attempts, m.NextAttemptAt, m.CreatedAt); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

// Claim is one statement: SKIP LOCKED keeps concurrent dispatchers apart and the
// lease hides claimed rows from them once it commits.
func (r *outboxRepo) Claim(ctx context.Context, tx repository.Tx, now, leaseUntil time.Time, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
UPDATE outbox o
   SET next_attempt_at = $2
  FROM (SELECT id FROM outbox
         WHERE sent_at IS NULL AND next_attempt_at <= $1
         ORDER BY next_attempt_at ASC, id ASC
         LIMIT $3
         FOR UPDATE SKIP LOCKED) due
 WHERE o.id = due.id
RETURNING o.id, o.kind, o.payload, o.attempts, o.last_error, o.next_attempt_at, o.sent_at, o.created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, leaseUntil, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OutboxMessage
	for rows.Next() {
		m := new(model.OutboxMessage)
		var kind string
		var payload []byte
		if err := rows.Scan(&m.ID, &kind, &payload, &m.Attempts, &m.LastError, &m.NextAttemptAt, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		m.Kind = model.OutboxKind(kind)
		m.Payload = payload
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *outboxRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE outbox SET sent_at=$2, last_error=NULL WHERE id=$1;`, id, at)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *outboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, attempts int, lastErr string, next time.Time) error {
	const q = `UPDATE outbox SET attempts=$2, last_error=$3, next_attempt_at=$4 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, attempts, lastErr, next)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
