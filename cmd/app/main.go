// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/config"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/adapter"
	emailAdapters "collab-billing/internal/infra/adapters/email"
	payAdapters "collab-billing/internal/infra/adapters/payment"
	pg "collab-billing/internal/infra/db/postgres"
	"collab-billing/internal/infra/i18n"
	"collab-billing/internal/infra/logging"
	"collab-billing/internal/infra/metrics"
	red "collab-billing/internal/infra/redis"
	"collab-billing/internal/infra/sched"
	"collab-billing/internal/infra/scheduler"
	"collab-billing/internal/infra/web"
	"collab-billing/internal/infra/worker"
	"collab-billing/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("development mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	statusCache := red.NewStatusCache(redisClient, logger)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	methodRepo := pg.NewPaymentMethodRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	changeRepo := pg.NewChangeRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	outboxRepo := pg.NewOutboxRepo(pool)
	notifLogRepo := pg.NewNotificationLogRepo(pool)
	userLocker := pg.NewAdvisoryUserLocker()
	tm := pg.NewTxManager(pool)

	// ---- Adapters ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.Stripe.SecretKey != "" {
		gateway, err = payAdapters.NewStripeGateway(payAdapters.StripeConfig{
			SecretKey:     cfg.Payment.Stripe.SecretKey,
			WebhookSecret: cfg.Payment.Stripe.WebhookSecret,
			SuccessURL:    cfg.Payment.Stripe.SuccessURL,
			CancelURL:     cfg.Payment.Stripe.CancelURL,
			APIURL:        cfg.Payment.Stripe.APIURL,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("stripe gateway")
		}
	} else {
		logger.Warn().Msg("payment.stripe.secret_key not set; using the in-memory gateway")
		gateway = payAdapters.NewNoopGateway()
	}

	var mail adapter.EmailSender
	if cfg.Email.Postmark.ServerToken != "" {
		mail, err = emailAdapters.NewPostmarkSender(emailAdapters.PostmarkConfig{
			ServerToken:  cfg.Email.Postmark.ServerToken,
			AccountToken: cfg.Email.Postmark.AccountToken,
			From:         cfg.Email.From,
			ReplyTo:      cfg.Email.ReplyTo,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postmark sender")
		}
	} else {
		mail = emailAdapters.NewLogSender(logger)
	}

	translator, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		logger.Fatal().Err(err).Msg("translations")
	}

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo, logger)
	renewalRetry := model.RetryPolicy{MaxAttempts: cfg.Renewal.MaxFailures, Window: cfg.Renewal.FailureWindow}
	subUC := usecase.NewSubscriptionUseCase(usecase.SubscriptionDeps{
		Subs:       subRepo,
		Plans:      planRepo,
		Payments:   payRepo,
		Users:      userRepo,
		Methods:    methodRepo,
		Changes:    changeRepo,
		Locker:     userLocker,
		TM:         tm,
		Gateway:    gateway,
		Outbox:     outboxRepo,
		Translator: translator,
	}, usecase.SubscriptionConfig{
		Currency:      cfg.Payment.Currency,
		SuccessURL:    cfg.Payment.Stripe.SuccessURL,
		CancelURL:     cfg.Payment.Stripe.CancelURL,
		RenewalWindow: cfg.Renewal.Window,
		RenewalRetry:  renewalRetry,
	}, logger)
	payUC := usecase.NewPaymentUseCase(changeRepo, gateway, subUC, logger)
	refundUC := usecase.NewRefundUseCase(usecase.RefundDeps{
		Refunds:   refundRepo,
		Payments:  payRepo,
		Users:     userRepo,
		Subs:      subRepo,
		Outbox:    outboxRepo,
		Locker:    userLocker,
		TM:        tm,
		Gateway:   gateway,
		Lifecycle: subUC,
	}, translator, time.Now, logger)
	userUC := usecase.NewUserUseCase(userRepo, methodRepo, subUC, tm, logger)
	statusUC := usecase.NewStatusUseCase(statusCache, userRepo, subRepo, planRepo, usecase.StatusConfig{
		TTL:           cfg.Status.CacheTTL,
		OnlineWindow:  cfg.Status.OnlineWindow,
		RefreshSample: cfg.Status.RefreshSample,
	}, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, subRepo, payRepo, logger)
	notifUC := usecase.NewNotificationUseCase(usecase.NotificationDeps{
		Subs:   subRepo,
		Plans:  planRepo,
		Users:  userRepo,
		Log:    notifLogRepo,
		Outbox: outboxRepo,
		TM:     tm,
	}, translator, logger)

	// ---- Background ----
	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() { pg.ReportPoolStats(ctx, pool, 15*time.Second, logger) })
	listener := pg.NewSubscriptionListener(pool, statusUC, logger)
	goRun(func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("subscription listener stopped")
		}
	})

	renewPool := worker.NewPool("renewal", cfg.Renewal.Workers, logger)
	renewPool.Start(ctx)
	defer renewPool.Stop()

	jobs := []*scheduler.Scheduler{
		scheduler.NewScheduler("renewal", cfg.Renewal.ScanInterval,
			sched.NewRenewalWorker(subRepo, subUC, renewPool, cfg.Renewal.Window, renewalRetry, cfg.Renewal.BatchSize, logger).Tick,
			logger, scheduler.WithLock(locker, cfg.Renewal.ScanInterval), scheduler.WithTimeout(cfg.Renewal.ScanInterval/2)),
		scheduler.NewScheduler("upgrade_reconcile", cfg.Renewal.ReconcileAfter,
			sched.NewUpgradeReconciler(payUC, cfg.Renewal.ReconcileAfter, logger).Tick,
			logger, scheduler.WithLock(locker, cfg.Renewal.ReconcileAfter)),
		scheduler.NewScheduler("expiry_notify", cfg.Scheduler.ExpiryCheckInterval,
			sched.NewExpiryNotifier(notifUC, cfg.Scheduler.ExpiryThresholdDays, logger).Tick,
			logger, scheduler.WithLock(locker, cfg.Scheduler.ExpiryCheckInterval)),
		scheduler.NewScheduler("outbox", cfg.Outbox.PollInterval,
			sched.NewOutboxDispatcher(outboxRepo, mail, cfg.Outbox.BatchSize, logger).Tick,
			logger, scheduler.WithLock(locker, time.Minute), scheduler.WithRunOnStart()),
		scheduler.NewScheduler("subscription_gauge", time.Minute,
			sched.NewSubscriptionGauge(subRepo).Tick,
			logger, scheduler.WithRunOnStart()),
	}
	for _, j := range jobs {
		j.Start(ctx)
	}

	// ---- HTTP ----
	srv := web.NewServer(web.Deps{
		Subs:     subUC,
		Payments: payUC,
		Refunds:  refundUC,
		Status:   statusUC,
		Users:    userUC,
		Plans:    planUC,
		Stats:    statsUC,
		Auth:     web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, cfg.Admin.UserIDs),
		Limiter:  rateLimiter,
		Health: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		},
	}, web.Options{
		RateLimitPerMin:  cfg.Server.RateLimitPerMin,
		AllowTestRenewal: cfg.Renewal.AllowTestHeader,
	}, logger)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Server) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	for _, j := range jobs {
		j.Stop()
	}
	wg.Wait()
	logger.Info().Msg("stopped")
}
