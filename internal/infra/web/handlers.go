package web

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/infra/metrics"
	"collab-billing/internal/usecase"
)

const maxWebhookBytes = 64 << 10

func (s *Server) notWired(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, errorBody{Error: "not implemented", Code: "not_implemented"})
}

// actingUser resolves whose account a request acts on. A body userId that differs
// from the token subject is only accepted from admins.
func actingUser(r *http.Request, requested string) (string, error) {
	c := claimsFrom(r.Context())
	if c == nil {
		return "", domain.ErrUnauthorized
	}
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == c.Subject {
		return c.Subject, nil
	}
	if c.IsAdmin() {
		return requested, nil
	}
	return "", domain.ErrForbidden
}

// planType labels transition metrics; lookups go through the cached catalog.
func (s *Server) planType(ctx context.Context, planID string) string {
	if s.planUC == nil || planID == "" {
		return "unknown"
	}
	p, err := s.planUC.Get(ctx, planID)
	if err != nil {
		return "unknown"
	}
	return string(p.Type)
}

func (s *Server) recordConfirmation(ctx context.Context, st *usecase.PaymentStatus) {
	if st == nil || !st.Applied || st.Subscription == nil {
		return
	}
	metrics.IncPayment("upgrade", string(model.PaymentStatusCompleted))
	metrics.AddPaymentRevenue(st.Payment.Currency, st.Payment.AmountCents)
	metrics.IncSubscriptionTransition("upgrade", s.planType(ctx, st.Subscription.PlanID))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- plans ----

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	if s.planUC == nil {
		s.notWired(w)
		return
	}
	plans, err := s.planUC.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]*planView, 0, len(plans))
	for _, p := range plans {
		items = append(items, toPlanView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createPlanRequest struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	Price           string           `json:"price"`
	Currency        string           `json:"currency"`
	BillingInterval string           `json:"billing_interval"`
	Limits          model.PlanLimits `json:"limits"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	if s.planUC == nil {
		s.notWired(w)
		return
	}
	var req createPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	plan := &model.Plan{
		ID:              req.ID,
		Name:            req.Name,
		Type:            model.PlanType(strings.ToUpper(req.Type)),
		Price:           price,
		Currency:        req.Currency,
		BillingInterval: model.BillingInterval(strings.ToUpper(req.BillingInterval)),
		Limits:          req.Limits,
	}
	if err := s.planUC.Create(r.Context(), plan); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanView(plan))
}

// ---- subscription lifecycle ----

func (s *Server) handleCurrentSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	userID, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cur, err := s.subUC.GetCurrent(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCurrentView(cur))
}

type upgradeRequest struct {
	UserID          string `json:"userId"`
	NewPlanID       string `json:"newPlanId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	var req upgradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.NewPlanID) == "" {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	quote, err := s.subUC.Upgrade(r.Context(), usecase.UpgradeRequest{
		UserID:          userID,
		NewPlanID:       req.NewPlanID,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleSwitchToFree(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.subUC.SwitchToFreePlan(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncSubscriptionTransition("downgrade", string(model.PlanTypeFree))
	writeJSON(w, http.StatusOK, map[string]any{"subscription": toSubscriptionView(sub)})
}

func (s *Server) handleGetAutoRenew(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	userID, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.subUC.GetAutoRenewStatus(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAutoRenewView(st))
}

func (s *Server) handleToggleAutoRenew(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		UserID  string `json:"userId"`
		Enabled *bool  `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.subUC.ToggleAutoRenew(r.Context(), userID, *req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAutoRenewView(st))
}

func (s *Server) handleRenewal(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := usecase.RenewOptions{
		BypassWindow: s.opts.AllowTestRenewal && strings.EqualFold(r.Header.Get("x-test-renewal"), "true"),
	}
	res, err := s.subUC.Renew(r.Context(), userID, opts)
	if res != nil && res.Payment != nil {
		metrics.IncPayment("renewal", string(res.Payment.Status))
		metrics.AddPaymentRevenue(res.Payment.Currency, model.ToCents(res.Payment.Amount))
	} else if res != nil {
		metrics.IncPayment("renewal", string(model.PaymentStatusFailed))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": res.Success, "new_end_date": res.NewEndDate})
}

// ---- payments ----

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if s.payUC == nil {
		s.notWired(w)
		return
	}
	q := r.URL.Query()
	ref := usecase.PaymentRef{SessionID: q.Get("session_id"), PaymentIntentID: q.Get("payment_intent")}
	if (ref.SessionID == "") == (ref.PaymentIntentID == "") {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	owner := ""
	if c := claimsFrom(r.Context()); !c.IsAdmin() {
		owner = c.Subject
	}
	st, err := s.payUC.CheckStatus(r.Context(), owner, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncPaymentStatusCheck("poll", st.Payment.Status)
	s.recordConfirmation(r.Context(), st)
	writeJSON(w, http.StatusOK, toPaymentStatusView(st))
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.payUC == nil {
		s.notWired(w)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	st, err := s.payUC.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome := "ignored"
	if st != nil {
		outcome = st.Payment.Status
	}
	metrics.IncPaymentStatusCheck("webhook", outcome)
	s.recordConfirmation(r.Context(), st)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	if s.userUC == nil {
		s.notWired(w)
		return
	}
	userID, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	methods, err := s.userUC.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]paymentMethodView, 0, len(methods))
	for _, m := range methods {
		items = append(items, toPaymentMethodView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	if s.userUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		UserID      string `json:"userId"`
		ProcessorID string `json:"processorId"`
		Brand       string `json:"brand"`
		Last4       string `json:"last4"`
		MakeDefault bool   `json:"makeDefault"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.userUC.AddPaymentMethod(r.Context(), userID, usecase.PaymentMethodInput{
		ProcessorID: req.ProcessorID,
		Brand:       req.Brand,
		Last4:       req.Last4,
		MakeDefault: req.MakeDefault,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentMethodView(m))
}

// ---- refunds ----

func (s *Server) handleCreateRefundRequest(w http.ResponseWriter, r *http.Request) {
	if s.refundUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		UserID    string  `json:"userId"`
		PaymentID string  `json:"paymentId"`
		Reason    string  `json:"reason"`
		Amount    *string `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var amount *decimal.Decimal
	if req.Amount != nil {
		a, err := decimal.NewFromString(*req.Amount)
		if err != nil || !a.IsPositive() {
			s.writeError(w, r, domain.ErrInvalidArgument)
			return
		}
		amount = &a
	}
	rr, err := s.refundUC.CreateRequest(r.Context(), userID, req.PaymentID, req.Reason, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRefundRequestView(rr))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	if s.refundUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		RefundRequestID string `json:"refundRequestId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefundRequestID) == "" {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	out, err := s.refundUC.Refund(r.Context(), req.RefundRequestID)
	if err != nil {
		metrics.IncRefund("failed")
		s.writeError(w, r, err)
		return
	}
	metrics.IncRefund("approved")
	metrics.IncSubscriptionTransition("downgrade", string(model.PlanTypeFree))
	writeJSON(w, http.StatusOK, refundOutcomeView{
		Success:         out.Success,
		Refund:          out.Refund,
		NewSubscription: toSubscriptionView(out.NewSubscription),
	})
}

// ---- status & usage ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.statusUC == nil {
		s.notWired(w)
		return
	}
	userID, err := actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.statusUC.GetStatus(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if s.statusUC == nil {
		s.notWired(w)
		return
	}
	res, err := s.statusUC.Heartbeat(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrackUsage(w http.ResponseWriter, r *http.Request) {
	if s.subUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		UserID  string `json:"userId"`
		Counter string `json:"counter"`
		Delta   int    `json:"delta"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := actingUser(r, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Delta == 0 {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	sub, err := s.subUC.TrackUsage(r.Context(), userID, model.UsageCounter(req.Counter), req.Delta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncUsage(req.Counter)
	writeJSON(w, http.StatusOK, map[string]any{"usage": sub.Usage})
}

// ---- admin ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.statsUC == nil {
		s.notWired(w)
		return
	}
	o, err := s.statsUC.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":         o.Users,
		"active_subs_by_plan": o.ActiveByPlan,
		"revenue":             o.Revenue,
	})
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	if s.userUC == nil {
		s.notWired(w)
		return
	}
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !strings.Contains(req.Email, "@") {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	u, err := s.userUC.RegisterOrFetch(r.Context(), req.Email, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.userUC == nil {
		s.notWired(w)
		return
	}
	u, err := s.userUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}
