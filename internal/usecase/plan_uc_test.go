//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/usecase"
)

func TestPlanUseCase_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMockPlanRepo()
	uc := usecase.NewPlanUseCase(repo, newTestLogger())

	plan, err := model.NewPlan("plan-team", "Team", model.PlanTypePro, dec("12.50"), "usd", model.BillingIntervalMonthly)
	if err != nil {
		t.Fatalf("NewPlan returned error: %v", err)
	}

	// create
	if err := uc.Create(ctx, plan); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := uc.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Name != plan.Name {
		t.Fatalf("expected name %q got %q", plan.Name, got.Name)
	}
	if !got.Price.Equal(plan.Price) {
		t.Fatalf("expected price %s got %s", plan.Price, got.Price)
	}
}

func TestPlanUseCase_CreateRejectsInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uc := usecase.NewPlanUseCase(NewMockPlanRepo(), newTestLogger())

	cases := map[string]*model.Plan{
		"nil":            nil,
		"no name":        {ID: "p", Type: model.PlanTypePro, Price: dec("1")},
		"unknown type":   {ID: "p", Name: "x", Type: model.PlanType("GOLD"), Price: dec("1")},
		"negative price": {ID: "p", Name: "x", Type: model.PlanTypePro, Price: dec("-1")},
	}
	for name, p := range cases {
		if err := uc.Create(ctx, p); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestPlanUseCase_ListOrdersByTierThenPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMockPlanRepo()
	uc := usecase.NewPlanUseCase(repo, newTestLogger())

	plans := []*model.Plan{
		{ID: "a", Name: "Enterprise", Type: model.PlanTypeEnterprise, Price: dec("50"), BillingInterval: model.BillingIntervalMonthly},
		{ID: "b", Name: "Pro yearly", Type: model.PlanTypePro, Price: dec("200"), BillingInterval: model.BillingIntervalYearly},
		{ID: "c", Name: "Pro", Type: model.PlanTypePro, Price: dec("20"), BillingInterval: model.BillingIntervalMonthly},
		{ID: "d", Name: "Free", Type: model.PlanTypeFree, Price: decimal.Zero},
	}
	for _, p := range plans {
		if err := uc.Create(ctx, p); err != nil {
			t.Fatalf("create plan %s: %v", p.Name, err)
		}
	}

	got, err := uc.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	want := []string{"Free", "Pro", "Pro yearly", "Enterprise"}
	if len(got) != len(want) {
		t.Fatalf("expected %d plans, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: expected %q, got %q", i, name, got[i].Name)
		}
	}
}

func TestPlanUseCase_GetInvalidID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uc := usecase.NewPlanUseCase(NewMockPlanRepo(), newTestLogger())

	_, err := uc.Get(ctx, "non-existent")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got %v", err)
	}
	if _, err := uc.Get(ctx, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected domain.ErrInvalidArgument, got %v", err)
	}
}
