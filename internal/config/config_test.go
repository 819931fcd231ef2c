//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeYAML(t, `
database:
  url: postgres://yaml
redis:
  url: redis://localhost:6379
auth:
  jwt_secret: s3cret
renewal:
  max_failures: 5
`)
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL, "env overrides yaml")
	assert.Equal(t, 5, cfg.Renewal.MaxFailures)
	assert.Equal(t, 7*24*time.Hour, cfg.Renewal.Window)
	assert.Equal(t, 24*time.Hour, cfg.Renewal.FailureWindow)
	assert.Equal(t, 30*time.Second, cfg.Status.CacheTTL)
	assert.Equal(t, 0.1, cfg.Status.RefreshSample)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, []int{7, 3, 1}, cfg.Scheduler.ExpiryThresholdDays)
	assert.True(t, cfg.Runtime.Dev)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_URL", "redis://env")
	t.Setenv("JWT_SECRET", "k")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Validation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	path := writeYAML(t, "redis:\n  url: redis://x\nauth:\n  jwt_secret: k\n")
	_, err := Load(path, false)
	assert.EqualError(t, err, "database.url is required")
}
