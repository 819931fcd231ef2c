//go:build !integration

package postgres

import (
	"context"
	"time"

	"collab-billing/internal/domain/model"
	"collab-billing/internal/domain/ports/repository"
	red "collab-billing/internal/infra/redis"
)

// mockInnerPlanRepo mocks the database repository that the plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc       func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
	FindByTypeFunc func(ctx context.Context, tx repository.Tx, typ model.PlanType) (*model.Plan, error)
	ListAllFunc    func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}
func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) FindByType(ctx context.Context, tx repository.Tx, typ model.PlanType) (*model.Plan, error) {
	return m.FindByTypeFunc(ctx, tx, typ)
}
func (m *mockInnerPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListAllFunc(ctx, tx)
}

// mockRedisClient stands in for the KV cache surface.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.KV = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
