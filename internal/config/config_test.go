package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "mchatbot.db", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.ScorerTimeout)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 1000, cfg.CacheCapacity)
	assert.Equal(t, 100, cfg.CacheEvictBatch)
	assert.Equal(t, RateLimitStoreMemory, cfg.RateLimitStore)
	assert.True(t, cfg.RateLimitFailOpen)
	assert.Empty(t, cfg.GeminiAPIKey)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_CAPACITY", "50")
	t.Setenv("RATE_LIMIT_STORE", "Redis")
	t.Setenv("RATE_LIMIT_FAIL_OPEN", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.CacheCapacity)
	assert.Equal(t, RateLimitStoreRedis, cfg.RateLimitStore)
	assert.False(t, cfg.RateLimitFailOpen)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestFromEnvErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("RATE_LIMIT_STORE", "memcached")

	_, err := FromEnv()
	require.Error(t, err)
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "CACHE_TTL")
	assert.ErrorContains(t, err, "RATE_LIMIT_STORE")
}
