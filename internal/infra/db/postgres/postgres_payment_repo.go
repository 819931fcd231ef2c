package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, plan_id, amount_cents, currency, status, stripe_payment_id, transaction_id, discount_cents, metadata, created_at, updated_at`

// Save appends a payment or updates its status and metadata; amounts are immutable.
func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status=$6, stripe_payment_id=$7, transaction_id=$8, metadata=$10::jsonb, updated_at=$12;`

	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode payment metadata: %w", err)
	}
	if p.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.PlanID, model.ToCents(p.Amount), p.Currency, string(p.Status),
		p.StripePaymentID, p.TransactionID, model.ToCents(p.DiscountAmount), string(meta), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, scanOne(err)
	}
	return p, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

var revenuePeriods = map[string]bool{"week": true, "month": true, "year": true}

func (r *paymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	if !revenuePeriods[period] {
		return 0, domain.ErrInvalidArgument
	}
	const q = `SELECT COALESCE(SUM(amount_cents),0)::bigint FROM payments WHERE status='COMPLETED' AND created_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p                model.Payment
		status           string
		amount, discount int64
		meta             []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &amount, &p.Currency, &status, &p.StripePaymentID, &p.TransactionID, &discount, &meta, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.Amount = model.FromCents(amount)
	p.DiscountAmount = model.FromCents(discount)
	p.Metadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
