package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfigDefaults verifies the documented defaults.
func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "chat.db", cfg.DatabasePath)
	assert.False(t, cfg.DatabaseDebug)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "500ms")
	t.Setenv("DATABASE_PATH", "/tmp/rooms.db")
	t.Setenv("DB_DEBUG", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "/tmp/rooms.db", cfg.DatabasePath)
	assert.True(t, cfg.DatabaseDebug)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 256, cfg.SendBufferSize)
}

func TestNewConfigFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "huge")

	_, err := NewConfigFromEnv()
	assert.Error(t, err)
}

// TestConfigSanitize verifies that out-of-range values fall back to defaults.
func TestConfigSanitize(t *testing.T) {
	cfg := Config{
		Port:            " ",
		MaxMessageSize:  -1,
		SendBufferSize:  0,
		RateLimit:       RateLimitConfig{Burst: -3, RefillInterval: -time.Second},
		ShutdownTimeout: 0,
	}.sanitize()

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, defaultSendBufferSize, cfg.SendBufferSize)
	assert.Equal(t, defaultRateLimitBurst, cfg.RateLimit.Burst)
	assert.Equal(t, defaultRefillInterval, cfg.RateLimit.RefillInterval)
	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestConfigSanitizeCopiesOrigins(t *testing.T) {
	origins := []string{"http://a.example"}
	cfg := Config{AllowedOrigins: origins}.sanitize()

	origins[0] = "http://mutated.example"
	assert.Equal(t, []string{"http://a.example"}, cfg.AllowedOrigins)
}
