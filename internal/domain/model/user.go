package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"collab-billing/internal/domain"
)

// User is the billing view of an account.
type User struct {
	ID               string
	Email            string
	Name             string
	AutoRenewEnabled bool
	StripeCustomerID *string
	LastSeenAt       *time.Time
	CreatedAt        time.Time
}

func NewUser(id, email, name string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: time.Now(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// IsOnline reports whether the user was seen within window.
func (u *User) IsOnline(now time.Time, window time.Duration) bool {
	return u.LastSeenAt != nil && now.Sub(*u.LastSeenAt) <= window
}

// PaymentMethod is a stored processor payment method.
type PaymentMethod struct {
	ID          string
	UserID      string
	ProcessorID string // e.g. pm_...
	Brand       string
	Last4       string
	IsDefault   bool
	CreatedAt   time.Time
}

// DefaultPaymentMethod returns the default method, or nil.
func DefaultPaymentMethod(methods []*PaymentMethod) *PaymentMethod {
	for _, m := range methods {
		if m.IsDefault {
			return m
		}
	}
	return nil
}
