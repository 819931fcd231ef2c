package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/infra/logging"
)

var _ adapter.EmailSender = (*PostmarkSender)(nil)

// ErrSendFailed wraps every delivery failure so the outbox can retry it.
var ErrSendFailed = errors.New("email delivery failed")

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
	// BaseURL overrides the Postmark API endpoint (tests).
	BaseURL    string
	HTTPClient *http.Client
}

// PostmarkSender delivers transactional email through Postmark.
type PostmarkSender struct {
	client  *postmark.Client
	from    string
	replyTo string
	log     *zerolog.Logger
}

func NewPostmarkSender(cfg PostmarkConfig, logger *zerolog.Logger) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", domain.ErrInvalidArgument)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sender address is required", domain.ErrInvalidArgument)
	}
	c := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	} else {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	l := logger.With().Str("component", "PostmarkSender").Logger()
	return &PostmarkSender{client: c, from: cfg.From, replyTo: cfg.ReplyTo, log: &l}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, e model.Email) (string, error) {
	if e.To == "" || e.Subject == "" {
		return "", domain.ErrInvalidArgument
	}
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.replyTo,
		To:         e.To,
		Subject:    e.Subject,
		Tag:        e.Tag,
		HTMLBody:   e.HTML,
		TextBody:   e.Text,
		TrackOpens: true,
	})
	if err != nil {
		return "", errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	s.log.Debug().Str("message_id", resp.MessageID).Str("to", logging.Redact(e.To, false)).Str("tag", e.Tag).Msg("email sent")
	return resp.MessageID, nil
}
