package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8050", cfg.ServerPort)
	assert.True(t, decimal.RequireFromString("0.85").Equal(cfg.AcceptRatio))
	assert.True(t, decimal.RequireFromString("0.90").Equal(cfg.CounterRate))
	assert.Equal(t, 5, cfg.DispatchMaxRetries)
	assert.Equal(t, 60, cfg.RateLimitRequests)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("NEGOTIATION_ACCEPT_RATIO", "0.80")
	t.Setenv("DISPATCH_MAX_RETRIES", "2")
	t.Setenv("RESPONDER_TIMEOUT", "5s")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.True(t, decimal.RequireFromString("0.80").Equal(cfg.AcceptRatio))
	assert.Equal(t, 2, cfg.DispatchMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.ResponderTimeout)
	assert.True(t, cfg.TracingEnabled)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("NEGOTIATION_ACCEPT_RATIO", "-1")
	t.Setenv("DISPATCH_MAX_RETRIES", "lots")
	t.Setenv("RESPONDER_TIMEOUT", "soon")

	cfg := Load()

	assert.True(t, decimal.RequireFromString("0.85").Equal(cfg.AcceptRatio))
	assert.Equal(t, 5, cfg.DispatchMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.ResponderTimeout)
}
