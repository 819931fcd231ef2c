//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	"collab-billing/internal/usecase"
)

type paymentFixture struct {
	*subFixture
	uc usecase.PaymentUseCase
}

func newPaymentFixture() *paymentFixture {
	sf := newSubFixture()
	return &paymentFixture{
		subFixture: sf,
		uc:         usecase.NewPaymentUseCase(sf.changes, sf.gateway, sf.uc, newTestLogger()),
	}
}

// quote opens an upgrade checkout for userID and returns the session and its metadata.
func (f *paymentFixture) quote(t *testing.T, userID string, plan *model.Plan) (*usecase.UpgradeQuote, map[string]string) {
	t.Helper()
	q, err := f.subFixture.uc.Upgrade(context.Background(), usecase.UpgradeRequest{UserID: userID, NewPlanID: plan.ID})
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	return q, f.gateway.Calls.Checkout[len(f.gateway.Calls.Checkout)-1].Metadata
}

func paidSession(id string, md map[string]string) adapter.GatewayPayment {
	return adapter.GatewayPayment{
		ID:              id,
		Object:          "checkout.session",
		Status:          "complete",
		PaymentStatus:   "paid",
		Paid:            true,
		AmountCents:     2000,
		Currency:        "usd",
		PaymentIntentID: "pi_" + id,
		Metadata:        md,
	}
}

func TestPaymentUseCase_CheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("should apply a paid session once", func(t *testing.T) {
		// --- Arrange ---
		f := newPaymentFixture()
		f.addUser("u1", false)
		q, md := f.quote(t, "u1", proPlan)
		f.gateway.RetrieveSessionFunc = func(ctx context.Context, id string) (adapter.GatewayPayment, error) {
			return paidSession(id, md), nil
		}

		// --- Act ---
		first, err1 := f.uc.CheckStatus(ctx, "u1", usecase.PaymentRef{SessionID: q.SessionID})
		second, err2 := f.uc.CheckStatus(ctx, "u1", usecase.PaymentRef{SessionID: q.SessionID})

		// --- Assert ---
		if err1 != nil || err2 != nil {
			t.Fatalf("expected no errors, got %v / %v", err1, err2)
		}
		if !first.Applied || second.Applied {
			t.Errorf("expected only the first call to apply, got %v / %v", first.Applied, second.Applied)
		}
		if first.Subscription == nil || first.Subscription.PlanID != proPlan.ID {
			t.Fatalf("expected a PRO subscription, got %+v", first.Subscription)
		}
		if f.payments.count() != 1 {
			t.Errorf("expected one payment, got %d", f.payments.count())
		}
		ch, _ := f.changes.FindByIDForUpdate(ctx, nil, q.ChangeID)
		if ch.Status != model.ChangeStatusConfirmed || ch.PaymentRef == nil || *ch.PaymentRef != "pi_"+q.SessionID {
			t.Errorf("unexpected change after confirmation: %+v", ch)
		}
	})

	t.Run("should report an unpaid session without side effects", func(t *testing.T) {
		f := newPaymentFixture()
		f.addUser("u1", false)
		q, _ := f.quote(t, "u1", proPlan)

		st, err := f.uc.CheckStatus(ctx, "u1", usecase.PaymentRef{SessionID: q.SessionID})

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if st.Applied || st.Subscription != nil || st.Payment.Status != "open" {
			t.Errorf("unexpected status: %+v", st)
		}
		if f.subs.count() != 0 {
			t.Errorf("expected no subscription rows, got %d", f.subs.count())
		}
	})

	t.Run("should forbid checking another user's payment", func(t *testing.T) {
		f := newPaymentFixture()
		f.addUser("u1", false)
		f.addUser("u2", false)
		q, md := f.quote(t, "u1", proPlan)
		f.gateway.RetrieveSessionFunc = func(ctx context.Context, id string) (adapter.GatewayPayment, error) {
			return paidSession(id, md), nil
		}

		_, err := f.uc.CheckStatus(ctx, "u2", usecase.PaymentRef{SessionID: q.SessionID})

		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("should apply a paid payment intent", func(t *testing.T) {
		f := newPaymentFixture()
		f.addUser("u1", false)
		_, md := f.quote(t, "u1", proPlan)
		f.gateway.RetrievePaymentIntentFunc = func(ctx context.Context, id string) (adapter.GatewayPayment, error) {
			return adapter.GatewayPayment{ID: id, Object: "payment_intent", Status: "succeeded", Paid: true, AmountCents: 2000, Currency: "usd", Metadata: md}, nil
		}

		st, err := f.uc.CheckStatus(ctx, "u1", usecase.PaymentRef{PaymentIntentID: "pi_direct"})

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !st.Applied {
			t.Fatal("expected the upgrade to be applied")
		}
		pays, _ := f.payments.ListByUser(ctx, nil, "u1", 0)
		if len(pays) != 1 || pays[0].ProcessorRef() != "pi_direct" {
			t.Errorf("expected payment referencing pi_direct, got %+v", pays)
		}
	})

	t.Run("should require exactly one reference", func(t *testing.T) {
		f := newPaymentFixture()

		_, err1 := f.uc.CheckStatus(ctx, "u1", usecase.PaymentRef{})
		_, err2 := f.uc.CheckStatus(ctx, "u1", usecase.PaymentRef{SessionID: "cs", PaymentIntentID: "pi"})

		if !errors.Is(err1, domain.ErrInvalidArgument) || !errors.Is(err2, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v / %v", err1, err2)
		}
	})

	t.Run("should reject tampered metadata", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.RetrieveSessionFunc = func(ctx context.Context, id string) (adapter.GatewayPayment, error) {
			return paidSession(id, map[string]string{"kind": "upgrade", "prorated_amount": "-5"}), nil
		}

		_, err := f.uc.CheckStatus(ctx, "", usecase.PaymentRef{SessionID: "cs_bad"})

		if !errors.Is(err, domain.ErrInvalidIntent) {
			t.Fatalf("expected ErrInvalidIntent, got %v", err)
		}
	})
}

func TestPaymentUseCase_HandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("should apply a completed checkout", func(t *testing.T) {
		f := newPaymentFixture()
		f.addUser("u1", false)
		q, md := f.quote(t, "u1", entPlan)
		f.gateway.ParseWebhookFunc = func(payload []byte, sig string) (adapter.WebhookEvent, error) {
			p := paidSession(q.SessionID, md)
			return adapter.WebhookEvent{ID: "evt_1", Type: usecase.EventCheckoutCompleted, Payment: &p}, nil
		}

		st, err := f.uc.HandleWebhook(ctx, []byte(`{}`), "sig")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !st.Applied || st.Subscription.PlanID != entPlan.ID {
			t.Errorf("unexpected status: %+v", st)
		}
	})

	t.Run("should reject a bad signature", func(t *testing.T) {
		f := newPaymentFixture()

		_, err := f.uc.HandleWebhook(ctx, []byte(`{}`), "bad")

		if !errors.Is(err, domain.ErrInvalidWebhook) {
			t.Fatalf("expected ErrInvalidWebhook, got %v", err)
		}
	})

	t.Run("should expire the pending change of an expired session", func(t *testing.T) {
		f := newPaymentFixture()
		f.addUser("u1", false)
		q, md := f.quote(t, "u1", proPlan)
		f.gateway.ParseWebhookFunc = func(payload []byte, sig string) (adapter.WebhookEvent, error) {
			p := adapter.GatewayPayment{ID: q.SessionID, Object: "checkout.session", Status: "expired", Expired: true, Metadata: md}
			return adapter.WebhookEvent{ID: "evt_2", Type: usecase.EventCheckoutExpired, Payment: &p}, nil
		}

		if _, err := f.uc.HandleWebhook(ctx, nil, "sig"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		ch, _ := f.changes.FindByIDForUpdate(ctx, nil, q.ChangeID)
		if ch.Status != model.ChangeStatusExpired {
			t.Errorf("expected EXPIRED, got %s", ch.Status)
		}
	})

	t.Run("should book a renewal charge that succeeded after renew returned", func(t *testing.T) {
		// --- Arrange ---
		f := newPaymentFixture()
		f.addUser("u1", true)
		f.addMethod("u1", "m1", true)
		sub := f.addPaidSub("u1", proPlan, 27*day, 3*day)
		sub.AutoRenew = true
		sub.PaymentMethodID = ptr("m1")
		_ = f.subs.Save(ctx, nil, sub)
		oldEnd := *sub.EndDate
		f.gateway.ChargeFunc = func(ctx context.Context, p adapter.ChargeParams) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{ID: "pi_r", Status: adapter.ChargePending}, nil
		}
		if _, err := f.subFixture.uc.Renew(ctx, "u1", usecase.RenewOptions{}); !errors.Is(err, domain.ErrPaymentDeclined) {
			t.Fatalf("seed: expected a pending renewal, got %v", err)
		}
		md := f.gateway.Calls.Charge[0].Metadata
		f.gateway.ParseWebhookFunc = func(payload []byte, sig string) (adapter.WebhookEvent, error) {
			p := adapter.GatewayPayment{ID: "pi_r", Object: "payment_intent", Status: "succeeded", Paid: true, AmountCents: 2000, Currency: "usd", Metadata: md}
			return adapter.WebhookEvent{ID: "evt_3", Type: usecase.EventPaymentIntentSucceeded, Payment: &p}, nil
		}

		// --- Act ---
		first, err1 := f.uc.HandleWebhook(ctx, nil, "sig")
		again, err2 := f.uc.HandleWebhook(ctx, nil, "sig")

		// --- Assert ---
		if err1 != nil || err2 != nil {
			t.Fatalf("expected no error, got %v / %v", err1, err2)
		}
		if !first.Applied || again.Applied {
			t.Errorf("expected exactly one application, got %v then %v", first.Applied, again.Applied)
		}
		s, _ := f.subs.FindByID(ctx, nil, sub.ID)
		if !s.EndDate.Equal(oldEnd.AddDate(0, 1, 0)) || s.RenewalFailureCount != 0 {
			t.Errorf("expected the period extended with retries cleared, got %+v", s)
		}
		if f.payments.count() != 1 {
			t.Errorf("expected one payment, got %d", f.payments.count())
		}
	})

	t.Run("should not apply a renewal charge for another user", func(t *testing.T) {
		f := newPaymentFixture()
		in := model.NewRenewalIntent("u1", "sub-1", proPlan.ID, fixedNow, dec("20"), 0)
		f.gateway.RetrievePaymentIntentFunc = func(ctx context.Context, id string) (adapter.GatewayPayment, error) {
			return adapter.GatewayPayment{ID: id, Object: "payment_intent", Paid: true, Metadata: in.Metadata()}, nil
		}

		_, err := f.uc.CheckStatus(ctx, "u2", usecase.PaymentRef{PaymentIntentID: "pi_r"})

		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestPaymentUseCase_ReconcilePending(t *testing.T) {
	ctx := context.Background()

	// --- Arrange ---
	f := newPaymentFixture()
	f.addUser("u1", false)
	f.addUser("u2", false)
	paid, paidMD := f.quote(t, "u1", proPlan)
	gone, _ := f.quote(t, "u2", proPlan)
	_ = f.changes.Save(ctx, nil, model.NewUpgradeChange(model.UpgradeIntent{
		ChangeID: "chg-nosession", UserID: "u2", NewPlanID: proPlan.ID, ProratedAmount: dec("20"),
	}, "", fixedNow))

	f.gateway.RetrieveSessionFunc = func(ctx context.Context, id string) (adapter.GatewayPayment, error) {
		if id == paid.SessionID {
			return paidSession(id, paidMD), nil
		}
		return adapter.GatewayPayment{ID: id, Object: "checkout.session", Status: "expired", Expired: true}, nil
	}

	// --- Act ---
	rep, err := f.uc.ReconcilePending(ctx, time.Minute, 10)

	// --- Assert ---
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := usecase.ReconcileReport{Checked: 3, Applied: 1, Expired: 2}
	if rep != want {
		t.Errorf("report = %+v, want %+v", rep, want)
	}
	ch, _ := f.changes.FindByIDForUpdate(ctx, nil, gone.ChangeID)
	if ch.Status != model.ChangeStatusExpired {
		t.Errorf("expected expired session change to be EXPIRED, got %s", ch.Status)
	}
	if n := f.subs.activeCount("u1"); n != 1 {
		t.Errorf("expected u1 to have one ACTIVE row, got %d", n)
	}
}
