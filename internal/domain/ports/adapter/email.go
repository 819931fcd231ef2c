package adapter

import (
	"context"

	"collab-billing/internal/domain/model"
)

// EmailSender delivers transactional email. Callers treat failures as non-fatal.
type EmailSender interface {
	Send(ctx context.Context, e model.Email) (messageID string, err error)
}
