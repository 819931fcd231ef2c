package usecase

import (
	"time"

	"collab-billing/internal/domain/model"
)

// Translator renders localized copy by key.
type Translator interface {
	T(key string, args ...interface{}) string
}

// mailer builds the transactional emails queued through the outbox.
type mailer struct {
	tr Translator
}

func displayName(u *model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func (m mailer) onOff(b bool) string {
	if b {
		return m.tr.T("auto_renew.on")
	}
	return m.tr.T("auto_renew.off")
}

func (m mailer) expiry(u *model.User, plan *model.Plan, end time.Time, days int) model.Email {
	date := end.UTC().Format("2006-01-02")
	return model.Email{
		To:      u.Email,
		Subject: m.tr.T("email.expiry.subject", plan.Name, days),
		Text:    m.tr.T("email.expiry.text", displayName(u), plan.Name, date, m.onOff(u.AutoRenewEnabled)),
		HTML:    m.tr.T("email.expiry.html", displayName(u), plan.Name, date, m.onOff(u.AutoRenewEnabled)),
		Tag:     "expiry",
	}
}

func (m mailer) refund(u *model.User, amount, currency string) model.Email {
	return model.Email{
		To:      u.Email,
		Subject: m.tr.T("email.refund.subject", amount, currency),
		Text:    m.tr.T("email.refund.text", displayName(u), amount, currency),
		HTML:    m.tr.T("email.refund.html", displayName(u), amount, currency),
		Tag:     "refund",
	}
}

func (m mailer) renewalFailed(u *model.User, plan *model.Plan, attempt, max int) model.Email {
	return model.Email{
		To:      u.Email,
		Subject: m.tr.T("email.renewal_failed.subject", plan.Name),
		Text:    m.tr.T("email.renewal_failed.text", displayName(u), plan.Name, attempt, max),
		HTML:    m.tr.T("email.renewal_failed.html", displayName(u), plan.Name, attempt, max),
		Tag:     "renewal-failed",
	}
}
