package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, name, auto_renew_enabled, stripe_customer_id, last_seen_at, created_at`

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  email=$2, name=$3, auto_renew_enabled=$4, stripe_customer_id=$5, last_seen_at=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Email, u.Name, u.AutoRenewEnabled, u.StripeCustomerID, u.LastSeenAt, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email)=$1;`
	return r.queryOne(ctx, tx, q, strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresUserRepo) SetAutoRenew(ctx context.Context, tx repository.Tx, userID string, enabled bool) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE users SET auto_renew_enabled=$2 WHERE id=$1;`, userID, enabled)
	if err != nil {
		return fmt.Errorf("set auto renew: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) TouchLastSeen(ctx context.Context, tx repository.Tx, userID string, at time.Time) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE users SET last_seen_at=GREATEST(COALESCE(last_seen_at, $2), $2) WHERE id=$1;`, userID, at)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *PostgresUserRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...any) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AutoRenewEnabled, &u.StripeCustomerID, &u.LastSeenAt, &u.CreatedAt); err != nil {
		return nil, scanOne(err)
	}
	return &u, nil
}

// -----------------------------
// Payment methods
// -----------------------------

var _ repository.PaymentMethodRepository = (*PostgresPaymentMethodRepo)(nil)

type PostgresPaymentMethodRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentMethodRepo(pool *pgxpool.Pool) *PostgresPaymentMethodRepo {
	return &PostgresPaymentMethodRepo{pool: pool}
}

func (r *PostgresPaymentMethodRepo) Save(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	const q = `
INSERT INTO payment_methods (id, user_id, processor_id, brand, last4, is_default, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET brand=$4, last4=$5, is_default=$6;`
	if _, err := execSQL(ctx, r.pool, tx, q, m.ID, m.UserID, m.ProcessorID, m.Brand, m.Last4, m.IsDefault, m.CreatedAt); err != nil {
		return fmt.Errorf("save payment method: %w", err)
	}
	return nil
}

func (r *PostgresPaymentMethodRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentMethod, error) {
	const q = `
SELECT id, user_id, processor_id, brand, last4, is_default, created_at
  FROM payment_methods
 WHERE user_id=$1
 ORDER BY is_default DESC, created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymentMethod
	for rows.Next() {
		m := new(model.PaymentMethod)
		if err := rows.Scan(&m.ID, &m.UserID, &m.ProcessorID, &m.Brand, &m.Last4, &m.IsDefault, &m.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *PostgresPaymentMethodRepo) SetDefault(ctx context.Context, tx repository.Tx, userID, methodID string) error {
	const q = `
UPDATE payment_methods SET is_default = (id = $2)
 WHERE user_id=$1
   AND EXISTS (SELECT 1 FROM payment_methods WHERE id=$2 AND user_id=$1);`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, methodID)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
