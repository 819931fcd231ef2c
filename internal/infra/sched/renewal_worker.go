package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/metrics"
	"collab-billing/internal/infra/worker"
	"collab-billing/internal/usecase"
)

// Submitter runs a task on a bounded pool. worker.Pool satisfies it.
type Submitter interface {
	SubmitWait(ctx context.Context, task worker.Task) error
}

var _ Submitter = (*worker.Pool)(nil)

// RenewalWorker charges subscriptions whose end date falls inside the renewal window.
type RenewalWorker struct {
	subs   repository.SubscriptionRepository
	subUC  usecase.SubscriptionUseCase
	pool   Submitter
	window time.Duration
	retry  model.RetryPolicy
	batch  int
	now    func() time.Time
	log    *zerolog.Logger
}

// retry must match the policy Renew enforces so the query skips the rows it would refuse.
func NewRenewalWorker(subs repository.SubscriptionRepository, subUC usecase.SubscriptionUseCase, pool Submitter, window time.Duration, retry model.RetryPolicy, batch int, logger *zerolog.Logger) *RenewalWorker {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{subs: subs, subUC: subUC, pool: pool, window: window, retry: retry, batch: batch, now: time.Now, log: &l}
}

// Tick renews one batch and waits for every renewal it submitted.
func (w *RenewalWorker) Tick(ctx context.Context) error {
	now := w.now()
	due, err := w.subs.FindRenewable(ctx, repository.NoTX, repository.RenewableQuery{
		Cutoff: now.Add(w.window),
		Now:    now,
		Retry:  w.retry,
		Limit:  w.batch,
	})
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, s := range due {
		userID := s.UserID
		wg.Add(1)
		err := w.pool.SubmitWait(ctx, func(ctx context.Context) error {
			defer wg.Done()
			return w.renewOne(ctx, userID)
		})
		if err != nil {
			wg.Done()
			w.log.Warn().Err(err).Str("user_id", userID).Msg("renewal not submitted")
			if ctx.Err() != nil {
				break
			}
		}
	}
	wg.Wait()
	w.log.Info().Int("candidates", len(due)).Msg("renewal batch finished")
	return nil
}

func (w *RenewalWorker) renewOne(ctx context.Context, userID string) error {
	res, err := w.subUC.Renew(ctx, userID, usecase.RenewOptions{})
	switch {
	case err == nil:
		metrics.IncRenewal("renewed")
		return nil
	case res != nil:
		// The failure was recorded against the subscription.
		metrics.IncRenewal("declined")
		w.log.Info().Err(err).Str("user_id", userID).Int("failures", res.FailureCount).Msg("renewal charge not successful")
		return nil
	case errors.Is(err, domain.ErrMaxRetriesExceeded):
		metrics.IncRenewal("max_retries")
		return nil
	case errors.Is(err, domain.ErrRenewalWindowNotOpen),
		errors.Is(err, domain.ErrAutoRenewDisabled),
		errors.Is(err, domain.ErrNoActiveSubscription),
		errors.Is(err, domain.ErrFreePlanAutoRenew),
		errors.Is(err, domain.ErrNoPaymentMethod):
		metrics.IncRenewal("skipped")
		w.log.Debug().Err(err).Str("user_id", userID).Msg("renewal skipped")
		return nil
	default:
		metrics.IncRenewal("error")
		return err
	}
}
