package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

const notificationKindExpiry = "expiry"

type NotificationUseCase interface {
	// CheckAndCountExpiring returns how many active subscriptions are expiring within N days.
	CheckAndCountExpiring(ctx context.Context, withinDays int) (int, error)
	// NotifyExpiring queues one reminder email per subscription and threshold.
	NotifyExpiring(ctx context.Context, thresholdDays []int) (int, error)
}

type NotificationDeps struct {
	Subs   repository.SubscriptionRepository
	Plans  repository.PlanRepository
	Users  repository.UserRepository
	Log    repository.NotificationLogRepository
	Outbox repository.OutboxRepository
	TM     repository.TransactionManager
}

type notificationUC struct {
	subs   repository.SubscriptionRepository
	plans  repository.PlanRepository
	users  repository.UserRepository
	notifs repository.NotificationLogRepository
	outbox repository.OutboxRepository
	tm     repository.TransactionManager
	mail   mailer
	now    func() time.Time
	log    *zerolog.Logger
}

func NewNotificationUseCase(deps NotificationDeps, tr Translator, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{
		subs:   deps.Subs,
		plans:  deps.Plans,
		users:  deps.Users,
		notifs: deps.Log,
		outbox: deps.Outbox,
		tm:     deps.TM,
		mail:   mailer{tr: tr},
		now:    time.Now,
		log:    logger,
	}
}

func (n *notificationUC) CheckAndCountExpiring(ctx context.Context, withinDays int) (int, error) {
	items, err := n.subs.FindExpiring(ctx, repository.NoTX, withinDays)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// NotifyExpiring queues at most one reminder per (subscription, threshold) pair,
// recorded in the notification log inside the same transaction as the outbox row.
// A subscription only gets the reminder of the tightest threshold it falls into.
func (n *notificationUC) NotifyExpiring(ctx context.Context, thresholdDays []int) (int, error) {
	days := append([]int(nil), thresholdDays...)
	sort.Ints(days)

	queued := 0
	handled := make(map[string]struct{})
	for _, d := range days {
		if d <= 0 {
			continue
		}
		subs, err := n.subs.FindExpiring(ctx, repository.NoTX, d)
		if err != nil {
			return queued, err
		}
		for _, s := range subs {
			if _, ok := handled[s.ID]; ok || s.EndDate == nil {
				continue
			}
			handled[s.ID] = struct{}{}
			ok, err := n.notifyOne(ctx, s, d)
			if err != nil {
				n.log.Error().Err(err).Str("subscription_id", s.ID).Int("days", d).Msg("expiry reminder failed")
				continue
			}
			if ok {
				queued++
			}
		}
	}
	return queued, nil
}

func (n *notificationUC) notifyOne(ctx context.Context, s *model.Subscription, days int) (bool, error) {
	queued := false
	err := n.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// The claim rolls back with the tx if anything below fails.
		claimed, err := n.notifs.Claim(ctx, tx, s.ID, s.UserID, notificationKindExpiry, days)
		if err != nil || !claimed {
			return err
		}
		user, err := n.users.FindByID(ctx, tx, s.UserID)
		if err != nil {
			return err
		}
		plan, err := n.plans.FindByID(ctx, tx, s.PlanID)
		if errors.Is(err, domain.ErrNotFound) {
			plan = model.DefaultFreePlan()
		} else if err != nil {
			return err
		}
		msg, err := model.NewEmailMessage(n.mail.expiry(user, plan, *s.EndDate, days), n.now())
		if err != nil {
			return err
		}
		if err := n.outbox.Enqueue(ctx, tx, msg); err != nil {
			return err
		}
		queued = true
		return nil
	})
	return queued, err
}
