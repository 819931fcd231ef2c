package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.RefundRequestRepository = (*refundRepo)(nil)

type refundRepo struct {
	pool *pgxpool.Pool
}

func NewRefundRepo(pool *pgxpool.Pool) repository.RefundRequestRepository {
	return &refundRepo{pool: pool}
}

const refundColumns = `id, user_id, payment_id, current_subscription_id, reason, refund_amount_cents, status, gateway_refund_id, processed_at, notes, created_at`

func (r *refundRepo) Save(ctx context.Context, tx repository.Tx, rr *model.RefundRequest) error {
	const q = `
INSERT INTO refund_requests (` + refundColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status=$7, gateway_refund_id=$8, processed_at=$9, notes=$10;`

	var amount *int64
	if rr.RefundAmount != nil {
		c := model.ToCents(*rr.RefundAmount)
		amount = &c
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		rr.ID, rr.UserID, rr.PaymentID, rr.CurrentSubscriptionID, rr.Reason, amount,
		string(rr.Status), rr.GatewayRefundID, rr.ProcessedAt, rr.Notes, rr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save refund request: %w", err)
	}
	return nil
}

func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	q := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id=$1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *refundRepo) FindPendingByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.RefundRequest, error) {
	const q = `SELECT ` + refundColumns + ` FROM refund_requests WHERE payment_id=$1 AND status='PENDING' LIMIT 1;`
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *refundRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...any) (*model.RefundRequest, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	rr, err := scanRefund(row)
	if err != nil {
		return nil, scanOne(err)
	}
	return rr, nil
}

func scanRefund(row pgx.Row) (*model.RefundRequest, error) {
	var (
		rr     model.RefundRequest
		status string
		amount *int64
	)
	if err := row.Scan(&rr.ID, &rr.UserID, &rr.PaymentID, &rr.CurrentSubscriptionID, &rr.Reason, &amount,
		&status, &rr.GatewayRefundID, &rr.ProcessedAt, &rr.Notes, &rr.CreatedAt); err != nil {
		return nil, err
	}
	rr.Status = model.RefundStatus(status)
	if amount != nil {
		d := model.FromCents(*amount)
		rr.RefundAmount = &d
	}
	return &rr, nil
}
