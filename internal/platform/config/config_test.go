package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{
			"ADDR", "REDIS_URL", "REDIS_POOL_SIZE", "REDIS_MIN_IDLE_CONNS", "REDIS_DIAL_TIMEOUT",
			"REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT", "JWT_SECRET_KEY_CALL", "LOG_LEVEL",
			"LOG_FORMAT", "RATE_LIMIT_DISABLED",
		} {
			t.Setenv(key, "")
		}

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
		assert.Equal(t, 10, cfg.Redis.PoolSize)
		assert.Equal(t, 2, cfg.Redis.MinIdleConns)
		assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
		assert.Equal(t, 500*time.Millisecond, cfg.Redis.ReadTimeout)
		assert.Equal(t, 500*time.Millisecond, cfg.Redis.WriteTimeout)
		assert.Empty(t, cfg.SessionSecret)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.False(t, cfg.RateLimitDisabled)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("ADDR", ":9090")
		t.Setenv("REDIS_URL", "redis://cache:6380/2")
		t.Setenv("REDIS_POOL_SIZE", "32")
		t.Setenv("REDIS_READ_TIMEOUT", "250ms")
		t.Setenv("JWT_SECRET_KEY_CALL", "s3cret")
		t.Setenv("LOG_FORMAT", "text")
		t.Setenv("RATE_LIMIT_DISABLED", "true")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, "redis://cache:6380/2", cfg.Redis.URL)
		assert.Equal(t, 32, cfg.Redis.PoolSize)
		assert.Equal(t, 250*time.Millisecond, cfg.Redis.ReadTimeout)
		assert.Equal(t, "s3cret", cfg.SessionSecret)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.True(t, cfg.RateLimitDisabled)
	})

	t.Run("malformed values are rejected", func(t *testing.T) {
		t.Setenv("REDIS_POOL_SIZE", "lots")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_POOL_SIZE")

		t.Setenv("REDIS_POOL_SIZE", "")
		t.Setenv("REDIS_DIAL_TIMEOUT", "soon")
		_, err = FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_DIAL_TIMEOUT")
	})
}
