package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"collab-billing/internal/config"
	"collab-billing/internal/usecase"
)

// Deps are the use cases the API serves. Nil use cases answer 501.
type Deps struct {
	Subs     usecase.SubscriptionUseCase
	Payments usecase.PaymentUseCase
	Refunds  usecase.RefundUseCase
	Status   usecase.StatusUseCase
	Users    usecase.UserUseCase
	Plans    usecase.PlanUseCase
	Stats    usecase.StatsUseCase

	Auth    *AuthManager
	Limiter RateLimiter

	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
}

type Options struct {
	RequestTimeout  time.Duration
	RateLimitPerMin int

	// AllowTestRenewal honours the x-test-renewal header.
	AllowTestRenewal bool
}

type Server struct {
	subUC    usecase.SubscriptionUseCase
	payUC    usecase.PaymentUseCase
	refundUC usecase.RefundUseCase
	statusUC usecase.StatusUseCase
	userUC   usecase.UserUseCase
	planUC   usecase.PlanUseCase
	statsUC  usecase.StatsUseCase

	auth    *AuthManager
	limiter RateLimiter
	health  func(ctx context.Context) error
	opts    Options
	log     *zerolog.Logger

	srv *http.Server
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		subUC:    deps.Subs,
		payUC:    deps.Payments,
		refundUC: deps.Refunds,
		statusUC: deps.Status,
		userUC:   deps.Users,
		planUC:   deps.Plans,
		statsUC:  deps.Stats,
		auth:     deps.Auth,
		limiter:  deps.Limiter,
		health:   deps.Health,
		opts:     opts,
		log:      &l,
	}
}

// Routes builds the router. Everything except /healthz and /metrics lives under /api.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceID, s.recoverer, s.requestLog, s.timeout)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/plans", s.handleListPlans)
		r.Post("/webhooks/stripe", s.handleStripeWebhook)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/subscription", func(r chi.Router) {
				r.Get("/", s.handleCurrentSubscription)
				r.With(s.rateLimit("upgrade")).Post("/upgrade", s.handleUpgrade)
				r.Post("/free", s.handleSwitchToFree)
				r.Get("/auto-renew", s.handleGetAutoRenew)
				r.Post("/auto-renew", s.handleToggleAutoRenew)
				r.With(s.rateLimit("renewal")).Post("/renewal", s.handleRenewal)
			})
			r.Get("/payment-status", s.handlePaymentStatus)
			r.With(s.rateLimit("refund_request")).Post("/refund-requests", s.handleCreateRefundRequest)
			r.Get("/payment-methods", s.handleListPaymentMethods)
			r.Post("/payment-methods", s.handleAddPaymentMethod)
			r.Get("/status", s.handleStatus)
			r.Post("/status/heartbeat", s.handleHeartbeat)
			r.Post("/usage", s.handleTrackUsage)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/payment-refund", s.handleRefund)
				r.Get("/admin/stats", s.handleStats)
				r.Post("/admin/plans", s.handleCreatePlan)
				r.Post("/admin/users", s.handleRegisterUser)
				r.Get("/admin/users/{id}", s.handleGetUser)
			})
		})
	})
	return r
}

func (s *Server) Start(cfg config.ServerConfig) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	s.log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
