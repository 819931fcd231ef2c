//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/usecase"
)

func TestStatsUseCase_Overview(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()

	t.Run("aggregates users, plans and revenue", func(t *testing.T) {
		// --- Arrange ---
		users := NewMockUserRepo()
		for _, id := range []string{"u1", "u2", "u3"} {
			_ = users.Save(ctx, nil, &model.User{ID: id, Email: id + "@example.com"})
		}
		subs := NewMockSubscriptionRepo()
		subs.CountActiveByPlanFunc = func(ctx context.Context, tx repository.Tx) (map[string]int, error) {
			return map[string]int{"PRO": 25, "ENTERPRISE": 3}, nil
		}
		payments := NewMockPaymentRepo()
		sums := map[string]int64{"week": 1050, "month": 200001, "year": 0}
		payments.SumByPeriodFunc = func(ctx context.Context, tx repository.Tx, period string) (int64, error) {
			return sums[period], nil
		}
		uc := usecase.NewStatsUseCase(users, subs, payments, testLogger)

		// --- Act ---
		o, err := uc.Overview(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got %v", err)
		}
		if o.Users != 3 {
			t.Errorf("expected 3 users, but got %d", o.Users)
		}
		if len(o.ActiveByPlan) != 2 || o.ActiveByPlan["PRO"] != 25 {
			t.Errorf("mismatch in active plan counts: %v", o.ActiveByPlan)
		}
		if o.Revenue["week"] != "10.50" || o.Revenue["month"] != "2000.01" || o.Revenue["year"] != "0.00" {
			t.Errorf("unexpected revenue: %v", o.Revenue)
		}
	})

	t.Run("any failing query fails the overview", func(t *testing.T) {
		payments := NewMockPaymentRepo()
		payments.SumByPeriodFunc = func(ctx context.Context, tx repository.Tx, period string) (int64, error) {
			if period == "month" {
				return 0, errBoom
			}
			return 100, nil
		}
		uc := usecase.NewStatsUseCase(NewMockUserRepo(), NewMockSubscriptionRepo(), payments, testLogger)

		o, err := uc.Overview(ctx)

		if !errors.Is(err, errBoom) || o != nil {
			t.Fatalf("expected errBoom and no overview, got %v, %v", o, err)
		}
	})
}
