package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionChangeRepository = (*changeRepo)(nil)

type changeRepo struct {
	pool *pgxpool.Pool
}

func NewChangeRepo(pool *pgxpool.Pool) repository.SubscriptionChangeRepository {
	return &changeRepo{pool: pool}
}

const changeColumns = `id, user_id, kind, status, current_plan_id, new_plan_id, amount_cents, session_id, payment_ref, subscription_id, payment_id, created_at, confirmed_at`

func (r *changeRepo) Save(ctx context.Context, tx repository.Tx, c *model.SubscriptionChange) error {
	const q = `
INSERT INTO subscription_changes (` + changeColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  status=$4, session_id=COALESCE(subscription_changes.session_id, $8), payment_ref=$9,
  subscription_id=$10, payment_id=$11, confirmed_at=$13;`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.UserID, string(c.Kind), string(c.Status), c.CurrentPlanID, c.NewPlanID, model.ToCents(c.Amount),
		c.SessionID, c.PaymentRef, c.SubscriptionID, c.PaymentID, c.CreatedAt, c.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription change: %w", err)
	}
	return nil
}

func (r *changeRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionChange, error) {
	q := `SELECT ` + changeColumns + ` FROM subscription_changes WHERE id=$1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *changeRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) (*model.SubscriptionChange, error) {
	const q = `SELECT ` + changeColumns + ` FROM subscription_changes WHERE session_id=$1;`
	return r.queryOne(ctx, tx, q, sessionID)
}

func (r *changeRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, kind model.ChangeKind, cutoff time.Time, limit int) ([]*model.SubscriptionChange, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + changeColumns + `
  FROM subscription_changes
 WHERE kind=$1 AND status='PENDING' AND created_at < $2
 ORDER BY created_at ASC
 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, string(kind), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SubscriptionChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *changeRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...any) (*model.SubscriptionChange, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	c, err := scanChange(row)
	if err != nil {
		return nil, scanOne(err)
	}
	return c, nil
}

func scanChange(row pgx.Row) (*model.SubscriptionChange, error) {
	var (
		c            model.SubscriptionChange
		kind, status string
		amount       int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &kind, &status, &c.CurrentPlanID, &c.NewPlanID, &amount,
		&c.SessionID, &c.PaymentRef, &c.SubscriptionID, &c.PaymentID, &c.CreatedAt, &c.ConfirmedAt); err != nil {
		return nil, err
	}
	c.Kind = model.ChangeKind(kind)
	c.Status = model.ChangeStatus(status)
	c.Amount = model.FromCents(amount)
	return &c, nil
}
