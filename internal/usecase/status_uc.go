package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"collab-billing/internal/domain"
	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ StatusUseCase = (*statusUC)(nil)

// StatusUseCase serves the per-user presence and subscription snapshot clients poll.
type StatusUseCase interface {
	GetStatus(ctx context.Context, userID string) (*model.UserStatus, error)
	// Heartbeat stamps last_seen and, on a sampled fraction of calls, refreshes the snapshot.
	Heartbeat(ctx context.Context, userID string) (*HeartbeatResult, error)
	// Invalidate drops the cached snapshot; called on subscription change notifications.
	Invalidate(ctx context.Context, userID string) error
}

type HeartbeatResult struct {
	Status *model.UserStatus `json:"status"`

	// NextHeartbeatMs tells the client when to call again.
	NextHeartbeatMs int64 `json:"next_heartbeat_ms"`
	Refreshed       bool  `json:"refreshed"`
}

type StatusConfig struct {
	TTL               time.Duration
	OnlineWindow      time.Duration
	HeartbeatInterval time.Duration

	// RefreshSample is the probability that a heartbeat refreshes the snapshot.
	RefreshSample float64
	Sampler       func() float64
	Now           func() time.Time
}

func (c StatusConfig) withDefaults() StatusConfig {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.OnlineWindow <= 0 {
		c.OnlineWindow = 15 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Minute
	}
	if c.RefreshSample <= 0 {
		c.RefreshSample = 0.1
	}
	if c.Sampler == nil {
		c.Sampler = rand.Float64
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type statusUC struct {
	cache repository.StatusCache
	users repository.UserRepository
	subs  repository.SubscriptionRepository
	plans repository.PlanRepository
	cfg   StatusConfig
	log   *zerolog.Logger
}

func NewStatusUseCase(cache repository.StatusCache, users repository.UserRepository, subs repository.SubscriptionRepository, plans repository.PlanRepository, cfg StatusConfig, logger *zerolog.Logger) *statusUC {
	l := logger.With().Str("component", "StatusUC").Logger()
	return &statusUC{cache: cache, users: users, subs: subs, plans: plans, cfg: cfg.withDefaults(), log: &l}
}

func (s *statusUC) GetStatus(ctx context.Context, userID string) (*model.UserStatus, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := s.cfg.Now()
	cached, err := s.cache.Get(ctx, userID)
	if err == nil {
		cached.Refresh(now, s.cfg.OnlineWindow)
		return cached, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn().Err(err).Msg("status cache read failed")
	}
	return s.reload(ctx, userID, now)
}

// reload builds the snapshot from the store and caches it for TTL.
func (s *statusUC) reload(ctx context.Context, userID string, now time.Time) (*model.UserStatus, error) {
	user, err := s.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	st := &model.UserStatus{
		UserID:           userID,
		LastSeenAt:       user.LastSeenAt,
		PlanType:         model.PlanTypeFree,
		AutoRenewEnabled: user.AutoRenewEnabled,
		FetchedAt:        now,
	}

	sub, err := s.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	switch {
	case err == nil:
		st.PlanID = sub.PlanID
		st.SubscriptionStatus = sub.Status
		st.EndDate = sub.EndDate
		plan, err := s.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
		if err != nil {
			return nil, err
		}
		st.PlanType = plan.Type
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	st.Refresh(now, s.cfg.OnlineWindow)

	if err := s.cache.Set(ctx, st, s.cfg.TTL); err != nil {
		s.log.Warn().Err(err).Msg("status cache write failed")
	}
	return st, nil
}

func (s *statusUC) Heartbeat(ctx context.Context, userID string) (*HeartbeatResult, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := s.cfg.Now()
	if err := s.users.TouchLastSeen(ctx, repository.NoTX, userID, now); err != nil {
		return nil, err
	}
	res := &HeartbeatResult{NextHeartbeatMs: s.cfg.HeartbeatInterval.Milliseconds()}

	if s.cfg.Sampler() < s.cfg.RefreshSample {
		st, err := s.reload(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		res.Status, res.Refreshed = st, true
		return res, nil
	}

	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		st, err := s.reload(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		res.Status = st
		return res, nil
	}
	// Patch presence only; the subscription part keeps its original expiry.
	cached.LastSeenAt = &now
	cached.Refresh(now, s.cfg.OnlineWindow)
	if left := s.cfg.TTL - now.Sub(cached.FetchedAt); left > 0 {
		if err := s.cache.Set(ctx, cached, left); err != nil {
			s.log.Warn().Err(err).Msg("status cache write failed")
		}
	}
	res.Status = cached
	return res, nil
}

func (s *statusUC) Invalidate(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidArgument
	}
	return s.cache.Invalidate(ctx, userID)
}
