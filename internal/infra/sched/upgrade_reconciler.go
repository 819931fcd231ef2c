package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/usecase"
)

// UpgradeReconciler finalizes upgrades whose checkout completed or expired but whose
// confirmation never reached us (lost webhook, closed tab, crash mid-confirm).
type UpgradeReconciler struct {
	payUC      usecase.PaymentUseCase
	staleAfter time.Duration
	limit      int
	log        *zerolog.Logger
}

func NewUpgradeReconciler(payUC usecase.PaymentUseCase, staleAfter time.Duration, logger *zerolog.Logger) *UpgradeReconciler {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	l := logger.With().Str("component", "UpgradeReconciler").Logger()
	return &UpgradeReconciler{payUC: payUC, staleAfter: staleAfter, limit: 200, log: &l}
}

func (w *UpgradeReconciler) Tick(ctx context.Context) error {
	rep, err := w.payUC.ReconcilePending(ctx, w.staleAfter, w.limit)
	if err != nil {
		return err
	}
	if rep.Checked > 0 {
		w.log.Info().
			Int("checked", rep.Checked).
			Int("applied", rep.Applied).
			Int("expired", rep.Expired).
			Int("failed", rep.Failed).
			Msg("pending upgrades reconciled")
	}
	return nil
}
