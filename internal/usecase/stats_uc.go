package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	// Overview gathers the admin dashboard figures in one call.
	Overview(ctx context.Context) (*Overview, error)
}

// Revenue periods, matching PaymentRepository.SumByPeriod.
var revenuePeriods = []string{"week", "month", "year"}

// Overview is a point-in-time snapshot; revenue covers COMPLETED payments
// keyed by period and expressed in major units.
type Overview struct {
	Users        int
	ActiveByPlan map[string]int
	Revenue      map[string]string
}

type statsUC struct {
	users    repository.UserRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	log      *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, subs repository.SubscriptionRepository, payments repository.PaymentRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, subs: subs, payments: payments, log: logger}
}

func (s *statsUC) Overview(ctx context.Context) (*Overview, error) {
	out := &Overview{Revenue: make(map[string]string, len(revenuePeriods))}
	sums := make([]int64, len(revenuePeriods))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Users, err = s.users.CountUsers(gctx, repository.NoTX)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveByPlan, err = s.subs.CountActiveByPlan(gctx, repository.NoTX)
		return err
	})
	for i, period := range revenuePeriods {
		i, period := i, period
		g.Go(func() (err error) {
			sums[i], err = s.payments.SumByPeriod(gctx, repository.NoTX, period)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Msg("stats overview")
		return nil, err
	}

	for i, period := range revenuePeriods {
		out.Revenue[period] = model.FromCents(sums[i]).StringFixed(2)
	}
	return out, nil
}
