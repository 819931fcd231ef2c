//go:build integration

package postgres

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"collab-billing/internal/domain/model"
)

var testPool *pgxpool.Pool

// TestMain uses BILLING_TEST_DATABASE_URL when set and otherwise starts a
// throwaway postgres:16 container on the host network.
func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn := os.Getenv("BILLING_TEST_DATABASE_URL")
	stop := func() {}
	if dsn == "" {
		var err error
		dsn, stop, err = startPostgres()
		if err != nil {
			log.Fatalf("start postgres: %v (is docker running?)", err)
		}
	}

	b := retry.WithMaxRetries(15, retry.NewConstant(2*time.Second))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		pool, err := pgxpool.Connect(ctx, dsn)
		if err == nil {
			err = pool.Ping(ctx)
		}
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			log.Printf("postgres not ready: %v", err)
			return retry.RetryableError(err)
		}
		testPool = pool
		return nil
	})
	if err != nil {
		stop()
		log.Fatalf("connect test database: %v", err)
	}

	logger := zerolog.Nop()
	if err := Migrate(ctx, testPool, &logger); err != nil {
		testPool.Close()
		stop()
		log.Fatalf("migrate: %v", err)
	}

	code := m.Run()
	testPool.Close()
	stop()
	os.Exit(code)
}

func startPostgres() (dsn string, stop func(), err error) {
	const db, user, pass = "billing_test", "billing", "billing"
	var out bytes.Buffer
	cmd := exec.Command("docker", "run", "-d", "--rm", "--network", "host",
		"-e", "POSTGRES_DB="+db,
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+pass,
		"postgres:16",
	)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", nil, err
	}
	id := strings.TrimSpace(out.String())
	stop = func() {
		if err := exec.Command("docker", "stop", id).Run(); err != nil {
			log.Printf("stop container %s: %v", id, err)
		}
	}
	return fmt.Sprintf("postgres://%s:%s@localhost:5432/%s?sslmode=disable", user, pass, db), stop, nil
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE
			plans, users, payment_methods, subscriptions, payments, refund_requests,
			subscription_changes, outbox, subscription_notifications
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}

// seedUserAndPlans stores one user plus a FREE and a monthly PRO plan.
func seedUserAndPlans(t *testing.T, ctx context.Context) (*model.User, *model.Plan, *model.Plan) {
	t.Helper()
	cleanup(t)
	user, err := model.NewUser("", fmt.Sprintf("u-%d@example.com", time.Now().UnixNano()), "Test User")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	user.AutoRenewEnabled = true
	free, _ := model.NewPlan("free", "Free", model.PlanTypeFree, decimal.Zero, "usd", model.BillingIntervalNone)
	pro, _ := model.NewPlan("pro", "Pro", model.PlanTypePro, decimal.RequireFromString("12.00"), "usd", model.BillingIntervalMonthly)

	if err := NewUserRepo(testPool).Save(ctx, nil, user); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	plans := NewPlanRepo(testPool)
	for _, p := range []*model.Plan{free, pro} {
		if err := plans.Save(ctx, nil, p); err != nil {
			t.Fatalf("failed to save plan %s: %v", p.ID, err)
		}
	}
	return user, free, pro
}

func addUser(t *testing.T, ctx context.Context) *model.User {
	t.Helper()
	u, err := model.NewUser("", fmt.Sprintf("u-%d@example.com", time.Now().UnixNano()), "Extra User")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	u.AutoRenewEnabled = true
	if err := NewUserRepo(testPool).Save(ctx, nil, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func addMethod(t *testing.T, ctx context.Context, userID string) *model.PaymentMethod {
	t.Helper()
	m := &model.PaymentMethod{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProcessorID: "pm_" + userID,
		Brand:       "visa",
		Last4:       "4242",
		IsDefault:   true,
		CreatedAt:   time.Now(),
	}
	if err := NewPaymentMethodRepo(testPool).Save(ctx, nil, m); err != nil {
		t.Fatalf("save payment method: %v", err)
	}
	return m
}
