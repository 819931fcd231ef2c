package repository

import (
	"context"

	"collab-billing/internal/domain/model"
)

// PlanRepository is the port for the plan catalog.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	// FindByType returns the cheapest plan of a type; used to resolve the FREE plan.
	FindByType(ctx context.Context, tx Tx, typ model.PlanType) (*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
