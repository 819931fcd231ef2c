//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-billing/internal/config"
)

func TestWith_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}, false)

	ctx := WithUserID(WithTraceID(context.Background(), "tr-1"), "u1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tr-1", line["trace_id"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Equal(t, "collab-billing", line["service"])
	assert.Equal(t, "tr-1", TraceID(ctx))
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, config.LogConfig{Level: "loud"}, false)
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "alice@example.com", Redact("alice@example.com", true))
	assert.Equal(t, "alic...om", Redact("alice@example.com", false))
	assert.Equal(t, "***", Redact("a@b.io", false))
}
