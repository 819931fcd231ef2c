package email

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
)

var _ adapter.EmailSender = (*LogSender)(nil)

// LogSender writes emails to the log instead of delivering them. Used when Postmark is not configured.
type LogSender struct {
	log *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	l := logger.With().Str("component", "LogSender").Logger()
	return &LogSender{log: &l}
}

func (s *LogSender) Send(_ context.Context, e model.Email) (string, error) {
	id := uuid.NewString()
	s.log.Info().Str("message_id", id).Str("to", e.To).Str("subject", e.Subject).Str("tag", e.Tag).Msg("email (not delivered)")
	return id, nil
}
