package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/metrics"
)

// deadLetterDelay parks a message that used up its retry budget.
const deadLetterDelay = 100 * 365 * 24 * time.Hour

// claimLease is how long a claimed message stays hidden from other dispatchers.
const claimLease = 5 * time.Minute

// OutboxDispatcher delivers queued side effects. A batch is leased in one short
// statement and delivered afterwards, so no database lock is held while sending
// and each outcome is recorded on its own.
type OutboxDispatcher struct {
	outbox repository.OutboxRepository
	mail   adapter.EmailSender
	policy model.RetryPolicy
	batch  int
	lease  time.Duration
	now    func() time.Time
	log    *zerolog.Logger
}

func NewOutboxDispatcher(outbox repository.OutboxRepository, mail adapter.EmailSender, batch int, logger *zerolog.Logger) *OutboxDispatcher {
	if batch <= 0 {
		batch = 20
	}
	l := logger.With().Str("component", "OutboxDispatcher").Logger()
	return &OutboxDispatcher{
		outbox: outbox,
		mail:   mail,
		policy: model.OutboxRetryPolicy(),
		batch:  batch,
		lease:  claimLease,
		now:    time.Now,
		log:    &l,
	}
}

func (d *OutboxDispatcher) Tick(ctx context.Context) error {
	now := d.now()
	msgs, err := d.outbox.Claim(ctx, repository.NoTX, now, now.Add(d.lease), d.batch)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range msgs {
		if ctx.Err() != nil {
			// Unsent claims reappear once the lease runs out.
			break
		}
		if err := d.deliver(ctx, m, d.now()); err != nil {
			d.log.Error().Err(err).Str("message_id", m.ID).Msg("outbox outcome not recorded")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver returns an error only when the outcome could not be recorded.
func (d *OutboxDispatcher) deliver(ctx context.Context, m *model.OutboxMessage, now time.Time) error {
	sendErr := d.send(ctx, m)
	if sendErr == nil {
		metrics.IncOutbox(string(m.Kind), "sent")
		return d.outbox.MarkSent(ctx, repository.NoTX, m.ID, now)
	}

	attempts := m.Attempts + 1
	next := d.policy.NextAttempt(attempts, now)
	result := "retry"
	if d.policy.GaveUp(attempts) {
		next = now.Add(deadLetterDelay)
		result = "dead"
		d.log.Error().Err(sendErr).Str("message_id", m.ID).Int("attempts", attempts).Msg("outbox message abandoned")
	} else {
		d.log.Warn().Err(sendErr).Str("message_id", m.ID).Int("attempts", attempts).Time("next_attempt_at", next).Msg("outbox delivery failed")
	}
	metrics.IncOutbox(string(m.Kind), result)
	return d.outbox.MarkFailed(ctx, repository.NoTX, m.ID, attempts, sendErr.Error(), next)
}

func (d *OutboxDispatcher) send(ctx context.Context, m *model.OutboxMessage) error {
	switch m.Kind {
	case model.OutboxKindEmail:
		e, err := m.Email()
		if err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}
		id, err := d.mail.Send(ctx, e)
		if err != nil {
			return err
		}
		d.log.Debug().Str("message_id", m.ID).Str("provider_id", id).Str("tag", e.Tag).Msg("email delivered")
		return nil
	default:
		return fmt.Errorf("unknown outbox kind %q", m.Kind)
	}
}
