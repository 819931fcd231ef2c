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

var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, name, type, price_cents, currency, billing_interval, limits, created_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	const q = `
INSERT INTO plans (` + planColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
ON CONFLICT (id) DO UPDATE
  SET name             = EXCLUDED.name,
      type             = EXCLUDED.type,
      price_cents      = EXCLUDED.price_cents,
      currency         = EXCLUDED.currency,
      billing_interval = EXCLUDED.billing_interval,
      limits           = EXCLUDED.limits;`

	limits, err := json.Marshal(plan.Limits)
	if err != nil {
		return fmt.Errorf("encode plan limits: %w", err)
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.Name, string(plan.Type), model.ToCents(plan.Price), plan.Currency,
		nullIfEmpty(string(plan.BillingInterval)), string(limits), plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	const q = `SELECT ` + planColumns + ` FROM plans WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, scanOne(err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) FindByType(ctx context.Context, tx repository.Tx, typ model.PlanType) (*model.Plan, error) {
	const q = `SELECT ` + planColumns + ` FROM plans WHERE type = $1 ORDER BY price_cents ASC, created_at ASC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, string(typ))
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, scanOne(err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	const q = `
SELECT ` + planColumns + `
  FROM plans
 ORDER BY CASE type WHEN 'FREE' THEN 0 WHEN 'PRO' THEN 1 ELSE 2 END, price_cents ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
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

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var (
		p        model.Plan
		typ      string
		cents    int64
		interval *string
		limits   []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &typ, &cents, &p.Currency, &interval, &limits, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Type = model.PlanType(typ)
	p.Price = model.FromCents(cents)
	if interval != nil {
		p.BillingInterval = model.BillingInterval(*interval)
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &p.Limits); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
