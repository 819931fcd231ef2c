package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// SubscriptionChannel is the NOTIFY channel fed by the subscriptions_notify trigger.
const SubscriptionChannel = "subscription_changes"

// Invalidator drops cached state for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// SubscriptionListener turns subscription row changes into cache invalidations,
// including changes written by other processes sharing the database.
type SubscriptionListener struct {
	pool    *pgxpool.Pool
	target  Invalidator
	log     *zerolog.Logger
	backoff time.Duration
}

func NewSubscriptionListener(pool *pgxpool.Pool, target Invalidator, logger *zerolog.Logger) *SubscriptionListener {
	l := logger.With().Str("component", "SubscriptionListener").Logger()
	return &SubscriptionListener{pool: pool, target: target, log: &l, backoff: 500 * time.Millisecond}
}

// Run blocks until ctx is cancelled, reconnecting with jittered backoff when the connection drops.
func (l *SubscriptionListener) Run(ctx context.Context) error {
	b := retry.WithCappedDuration(30*time.Second, retry.WithJitter(l.backoff/2, retry.NewExponential(l.backoff)))
	for {
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			if err := l.listen(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.log.Warn().Err(err).Msg("listener connection lost; reconnecting")
				return retry.RetryableError(err)
			}
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (l *SubscriptionListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+SubscriptionChannel); err != nil {
		return err
	}
	l.log.Info().Str("channel", SubscriptionChannel).Msg("listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return err
		}
		if n.Payload == "" {
			continue
		}
		if err := l.target.Invalidate(ctx, n.Payload); err != nil {
			l.log.Warn().Err(err).Str("user_id", n.Payload).Msg("invalidate status failed")
		}
	}
}
