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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, auto_renew, payment_method_id,
  current_projects, current_teams, current_members, current_ai_chat, current_ai_task, current_ai_workflow,
  last_renewal_attempt, renewal_failure_count, renewal_declines, created_at, updated_at`

// Save upserts the row. A second ACTIVE row for the user surfaces as ErrActiveSubscriptionExists.
func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (id) DO UPDATE SET
  status=$4, end_date=$6, auto_renew=$7, payment_method_id=$8,
  current_projects=$9, current_teams=$10, current_members=$11,
  current_ai_chat=$12, current_ai_task=$13, current_ai_workflow=$14,
  last_renewal_attempt=$15, renewal_failure_count=$16, renewal_declines=$17, updated_at=$19;`

	u := s.Usage
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PlanID, string(s.Status), s.StartDate, s.EndDate, s.AutoRenew, s.PaymentMethodID,
		u.Projects, u.Teams, u.Members, u.AIChat, u.AITask, u.AIWorkflow,
		s.LastRenewalAttempt, s.RenewalFailureCount, s.RenewalDeclines, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1 AND status='ACTIVE'
 ORDER BY created_at DESC
 LIMIT 1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1
 ORDER BY created_at DESC, updated_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) DeactivateAllActive(ctx context.Context, tx repository.Tx, userID string, status model.SubscriptionStatus, now time.Time) (int, error) {
	if !model.CanTransition(model.SubscriptionStatusActive, status) {
		return 0, domain.ErrInvalidTransition
	}
	const q = `
UPDATE subscriptions
   SET status=$2, auto_renew=FALSE, updated_at=$3
 WHERE user_id=$1 AND status='ACTIVE';`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, string(status), now)
	if err != nil {
		return 0, fmt.Errorf("deactivate subscriptions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FindRenewable leaves out rows Renew would refuse anyway, so a backlog of
// lapsed or card-less rows cannot fill every batch.
func (r *subscriptionRepo) FindRenewable(ctx context.Context, tx repository.Tx, rq repository.RenewableQuery) ([]*model.Subscription, error) {
	limit := rq.Limit
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT s.id, s.user_id, s.plan_id, s.status, s.start_date, s.end_date, s.auto_renew, s.payment_method_id,
       s.current_projects, s.current_teams, s.current_members, s.current_ai_chat, s.current_ai_task, s.current_ai_workflow,
       s.last_renewal_attempt, s.renewal_failure_count, s.renewal_declines, s.created_at, s.updated_at
  FROM subscriptions s
  JOIN plans p ON p.id = s.plan_id
  JOIN users u ON u.id = s.user_id
 WHERE s.status='ACTIVE'
   AND s.auto_renew
   AND u.auto_renew_enabled
   AND p.type <> 'FREE'
   AND p.billing_interval IS NOT NULL
   AND s.end_date IS NOT NULL
   AND s.end_date < $1
   AND EXISTS (SELECT 1 FROM payment_methods pm WHERE pm.user_id = s.user_id)
   AND NOT ($3 > 0
            AND s.renewal_failure_count >= $3
            AND s.last_renewal_attempt IS NOT NULL
            AND s.last_renewal_attempt > $4)
 ORDER BY s.end_date ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, rq.Cutoff, limit, rq.Retry.MaxAttempts, rq.Now.Add(-rq.Retry.Window))
}

func (r *subscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, withinDays int) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='ACTIVE'
   AND end_date > NOW()
   AND end_date <= NOW() + ($1::int * INTERVAL '1 day')
 ORDER BY end_date ASC;`
	return r.queryMany(ctx, tx, q, withinDays)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *subscriptionRepo) CountActiveByPlan(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	const q = `
SELECT p.type, COUNT(*)
  FROM subscriptions s
  JOIN plans p ON p.id = s.plan_id
 WHERE s.status='ACTIVE'
 GROUP BY p.type;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(map[string]int)
	for rows.Next() {
		var typ string
		var c int
		if err := rows.Scan(&typ, &c); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		m[typ] = c
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return m, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(row)
	if err != nil {
		return nil, scanOne(err)
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSub(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status string
	u := &s.Usage
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &status, &s.StartDate, &s.EndDate, &s.AutoRenew, &s.PaymentMethodID,
		&u.Projects, &u.Teams, &u.Members, &u.AIChat, &u.AITask, &u.AIWorkflow,
		&s.LastRenewalAttempt, &s.RenewalFailureCount, &s.RenewalDeclines, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}
