package model

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

type OutboxKind string

const (
	OutboxKindEmail OutboxKind = "email"
)

// OutboxMessage is a side effect committed together with the state change that caused it.
type OutboxMessage struct {
	ID            string
	Kind          OutboxKind
	Payload       json.RawMessage
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
}

// Email is the payload of an OutboxKindEmail message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
	Tag     string `json:"tag,omitempty"`
}

func NewEmailMessage(e Email, now time.Time) (*OutboxMessage, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:            ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Kind:          OutboxKindEmail,
		Payload:       b,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

func (m *OutboxMessage) Email() (Email, error) {
	var e Email
	err := json.Unmarshal(m.Payload, &e)
	return e, err
}
