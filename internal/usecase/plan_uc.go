package usecase

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase manages the plan catalog.
type PlanUseCase interface {
	Create(ctx context.Context, plan *model.Plan) error
	Get(ctx context.Context, id string) (*model.Plan, error)
	// List returns plans ordered by tier, then price.
	List(ctx context.Context) ([]*model.Plan, error)
}

type planUC struct {
	repo repository.PlanRepository
	log  *zerolog.Logger
}

func NewPlanUseCase(repo repository.PlanRepository, logger *zerolog.Logger) *planUC {
	return &planUC{repo: repo, log: logger}
}

func (uc *planUC) Create(ctx context.Context, plan *model.Plan) error {
	if plan == nil || plan.Name == "" || !plan.Type.Valid() || plan.Price.IsNegative() {
		return domain.ErrInvalidArgument
	}
	return uc.repo.Save(ctx, repository.NoTX, plan)
}

func (uc *planUC) Get(ctx context.Context, id string) (*model.Plan, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	return uc.repo.FindByID(ctx, repository.NoTX, id)
}

func (uc *planUC) List(ctx context.Context) ([]*model.Plan, error) {
	plans, err := uc.repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].Type.Rank() != plans[j].Type.Rank() {
			return plans[i].Type.Rank() < plans[j].Type.Rank()
		}
		return plans[i].Price.LessThan(plans[j].Price)
	})
	return plans, nil
}
