package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"collab-billing/internal/config"
	"collab-billing/internal/domain/model"
	pg "collab-billing/internal/infra/db/postgres"
	"collab-billing/internal/infra/logging"
	"collab-billing/internal/usecase"
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	planUC := usecase.NewPlanUseCase(pg.NewPlanRepo(pool), logger)

	// If plans already exist, do nothing
	plans, err := planUC.List(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list plans")
	}
	if len(plans) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(plans))
		for _, p := range plans {
			fmt.Printf("  - %s %s (%s %s/%s)\n", p.ID, p.Name, p.Price.StringFixed(2), p.Currency, p.BillingInterval)
		}
		return
	}

	seed := []struct {
		ID       string
		Name     string
		Type     model.PlanType
		Price    string
		Interval model.BillingInterval
		Limits   model.PlanLimits
	}{
		{"free", "Free", model.PlanTypeFree, "0", model.BillingIntervalNone, model.PlanLimits{Projects: 3, Teams: 1, Members: 5, AIActions: 50}},
		{"pro-monthly", "Pro", model.PlanTypePro, "12", model.BillingIntervalMonthly, model.PlanLimits{Projects: 50, Teams: 10, Members: 50, AIActions: 2000}},
		{"pro-yearly", "Pro (yearly)", model.PlanTypePro, "120", model.BillingIntervalYearly, model.PlanLimits{Projects: 50, Teams: 10, Members: 50, AIActions: 2000}},
		{"enterprise-monthly", "Enterprise", model.PlanTypeEnterprise, "49", model.BillingIntervalMonthly, model.PlanLimits{Projects: -1, Teams: -1, Members: -1, AIActions: -1}},
	}

	for _, s := range seed {
		p, err := model.NewPlan(s.ID, s.Name, s.Type, decimal.RequireFromString(s.Price), cfg.Payment.Currency, s.Interval)
		if err != nil {
			logger.Fatal().Err(err).Str("plan", s.ID).Msg("build plan")
		}
		p.Limits = s.Limits
		if err := planUC.Create(ctx, p); err != nil {
			logger.Fatal().Err(err).Str("plan", s.ID).Msg("create plan")
		}
		fmt.Printf("seeded: %s (%s, %s %s/%s)\n", p.ID, p.Type, p.Price.StringFixed(2), p.Currency, p.BillingInterval)
	}

	fmt.Println("Seeding complete.")
}
