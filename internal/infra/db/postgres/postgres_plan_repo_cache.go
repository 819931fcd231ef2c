package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	"collab-billing/internal/infra/metrics"
	red "collab-billing/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

const plansAllKey = "plans:all"

// planRepoCacheDecorator caches catalog reads. Reads inside a transaction bypass
// the cache so lifecycle operations always see committed catalog rows.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.KV
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.KV, ttl time.Duration, logger *zerolog.Logger) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "PlanCache").Logger()
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func planKey(id string) string { return fmt.Sprintf("plan:%s", id) }

func planTypeKey(t model.PlanType) string { return fmt.Sprintf("plan:type:%s", t) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	var plan model.Plan
	if d.get(ctx, planKey(id), "plan", &plan) {
		return &plan, nil
	}
	p, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.put(ctx, planKey(id), p)
	return p, nil
}

func (d *planRepoCacheDecorator) FindByType(ctx context.Context, tx repository.Tx, typ model.PlanType) (*model.Plan, error) {
	if tx != nil {
		return d.inner.FindByType(ctx, tx, typ)
	}
	var plan model.Plan
	if d.get(ctx, planTypeKey(typ), "plan_type", &plan) {
		return &plan, nil
	}
	p, err := d.inner.FindByType(ctx, tx, typ)
	if err != nil {
		return nil, err
	}
	d.put(ctx, planTypeKey(typ), p)
	return p, nil
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if tx != nil {
		return d.inner.ListAll(ctx, tx)
	}
	var plans []*model.Plan
	if d.get(ctx, plansAllKey, "plan_list", &plans) {
		return plans, nil
	}
	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		d.put(ctx, plansAllKey, plans)
	}
	return plans, nil
}

// Save invalidates every key the plan may be cached under.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, planKey(plan.ID), planTypeKey(plan.Type), plansAllKey); err != nil {
		d.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("plan cache invalidation failed")
	}
	return nil
}

func (d *planRepoCacheDecorator) get(ctx context.Context, key, name string, dst any) bool {
	val, err := d.cache.Get(ctx, key)
	if err == nil && json.Unmarshal([]byte(val), dst) == nil {
		metrics.IncCacheLookup(name, metrics.CacheHit)
		return true
	}
	result := metrics.CacheMiss
	if err != nil && !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
		result = metrics.CacheError
	}
	metrics.IncCacheLookup(name, result)
	return false
}

func (d *planRepoCacheDecorator) put(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
	}
}
