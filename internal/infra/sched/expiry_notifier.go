package sched

import (
	"context"

	"github.com/rs/zerolog"

	"collab-billing/internal/infra/metrics"
	"collab-billing/internal/usecase"
)

// ExpiryNotifier queues "expiring soon" reminders at each configured threshold.
type ExpiryNotifier struct {
	notifUC   usecase.NotificationUseCase
	threshold []int
	log       *zerolog.Logger
}

func NewExpiryNotifier(notifUC usecase.NotificationUseCase, thresholdDays []int, logger *zerolog.Logger) *ExpiryNotifier {
	if len(thresholdDays) == 0 {
		thresholdDays = []int{7, 3, 1}
	}
	l := logger.With().Str("component", "ExpiryNotifier").Logger()
	return &ExpiryNotifier{notifUC: notifUC, threshold: thresholdDays, log: &l}
}

func (w *ExpiryNotifier) Tick(ctx context.Context) error {
	n, err := w.notifUC.NotifyExpiring(ctx, w.threshold)
	if n > 0 {
		metrics.AddExpiryReminders(n)
		w.log.Info().Int("count", n).Msg("expiry reminders queued")
	}
	if err != nil {
		return err
	}
	expiring, err := w.notifUC.CheckAndCountExpiring(ctx, w.widest())
	if err != nil {
		return err
	}
	metrics.SetExpiringSoon(expiring)
	return nil
}

func (w *ExpiryNotifier) widest() int {
	max := 0
	for _, d := range w.threshold {
		if d > max {
			max = d
		}
	}
	return max
}
