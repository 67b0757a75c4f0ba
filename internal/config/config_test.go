package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "eventbooking")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "30")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_test")
}

func TestLoad_FillsRequiredFields(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "root", cfg.DBUser)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 30, cfg.RefreshTTLDays)
	assert.Equal(t, 10, cfg.BcryptCost)
}

func TestLoad_DefaultsWhenOptionalVarsUnset(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()

	assert.Equal(t, 600*time.Second, cfg.LockTTL)
	assert.Equal(t, 15*time.Minute, cfg.BookingTTL)
	assert.Equal(t, time.Minute, cfg.BookingSweepInterval)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "razorpay", cfg.PaymentGateway)
	assert.Equal(t, "INR", cfg.PaymentCurrency)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "route_query", cfg.Cache.KeyStrategy)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 20, cfg.RateLimit.Capacity)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("CACHE_ENABLED", "1")
	t.Setenv("RATE_LIMIT_CAPACITY", "5")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")

	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.LockTTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
}
