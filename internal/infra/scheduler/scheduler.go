package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/infra/metrics"
)

// Job is one tick of a periodic background task.
type Job func(ctx context.Context) error

// Locker guards a tick across replicas. RedisLocker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type Option func(*Scheduler)

// WithLock skips a tick when another replica holds "lock:job:<name>".
func WithLock(l Locker, ttl time.Duration) Option {
	return func(s *Scheduler) { s.locker, s.lockTTL = l, ttl }
}

// WithTimeout bounds each tick. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithRunOnStart runs the job immediately instead of waiting for the first tick.
func WithRunOnStart() Option {
	return func(s *Scheduler) { s.runOnStart = true }
}

// Scheduler periodically runs a Job.
type Scheduler struct {
	name       string
	interval   time.Duration
	timeout    time.Duration
	job        Job
	locker     Locker
	lockTTL    time.Duration
	runOnStart bool
	log        *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler runs job every interval. If interval <= 0 it defaults to 1 minute.
func NewScheduler(name string, interval time.Duration, job Job, logger *zerolog.Logger, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Str("job", name).Logger()
	s := &Scheduler{name: name, interval: interval, timeout: 30 * time.Second, job: job, log: &l}
	for _, o := range opts {
		o(s)
	}
	if s.lockTTL <= 0 {
		s.lockTTL = s.timeout
	}
	return s
}

func (s *Scheduler) Name() string { return s.name }

// Start begins the loop in a background goroutine. Calling Start twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-s.done
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	if s.runOnStart {
		s.RunOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single tick with timeout, lock and metrics applied.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		key := "lock:job:" + s.name
		token, err := s.locker.TryLock(runCtx, key, s.lockTTL)
		if err != nil {
			s.log.Debug().Err(err).Msg("tick skipped; lock not acquired")
			metrics.ObserveJob(s.name, "skipped", time.Since(start))
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn().Err(err).Msg("unlock failed")
			}
		}()
	}

	if err := s.job(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("tick failed")
		metrics.ObserveJob(s.name, "error", time.Since(start))
		return
	}
	metrics.ObserveJob(s.name, "ok", time.Since(start))
}

// Stop cancels the loop and waits for the running tick. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}
