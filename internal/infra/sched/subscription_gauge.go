package sched

import (
	"context"

	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/metrics"
)

// SubscriptionGauge refreshes the active-subscriptions-by-plan gauge.
type SubscriptionGauge struct {
	subs repository.SubscriptionRepository
}

func NewSubscriptionGauge(subs repository.SubscriptionRepository) *SubscriptionGauge {
	return &SubscriptionGauge{subs: subs}
}

func (g *SubscriptionGauge) Tick(ctx context.Context) error {
	counts, err := g.subs.CountActiveByPlan(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	metrics.SetActiveSubscriptions(counts)
	return nil
}
