package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.Relay.SendDelay)
	assert.Equal(t, time.Hour, cfg.Relay.CartReminderAge)
	assert.Equal(t, 5, cfg.Relay.ProductsPageSize)
	assert.Equal(t, 5, cfg.Relay.OrderLookupLimit)
	assert.False(t, cfg.Monitoring.Tracing.Enabled, "tracing must be off by default")
	assert.True(t, cfg.Security.RateLimiting.Enabled, "rate limiting must be on by default")
	assert.Equal(t, "shoprelay", cfg.Monitoring.Tracing.ServiceName)
}
