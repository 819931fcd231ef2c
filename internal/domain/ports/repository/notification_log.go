package repository

import "context"

// NotificationLogRepository remembers which reminders have been queued per
// subscription so a scan that overlaps a previous one stays silent.
type NotificationLogRepository interface {
	// Claim records the (subscription, kind, threshold) triple and reports
	// false when it was already recorded.
	Claim(ctx context.Context, tx Tx, subscriptionID, userID, kind string, thresholdDays int) (bool, error)
}
