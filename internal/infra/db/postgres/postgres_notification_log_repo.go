package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"collab-billing/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

// Claim is a single upsert against UNIQUE (subscription_id, kind, threshold_days);
// zero affected rows means another scan got there first.
func (r *notificationLogRepo) Claim(ctx context.Context, tx repository.Tx, subscriptionID, userID, kind string, thresholdDays int) (bool, error) {
	const q = `
INSERT INTO subscription_notifications (id, subscription_id, user_id, kind, threshold_days)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (subscription_id, kind, threshold_days) DO NOTHING`

	tag, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), subscriptionID, userID, kind, thresholdDays)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
