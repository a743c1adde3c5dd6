package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"API_BASE_URL",
	"WS_URL",
	"REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"SESSION_BACKEND",
	"STATE_FILE",
	"REDIS_URL",
	"INSTANCE_ID",
	"DATABASE_URL",
	"WS_MAX_RECONNECTS",
	"WS_BACKOFF_BASE",
	"NOTIFICATION_PAGE_SIZE",
	"PLAYER_EMAIL",
	"PLAYER_PASSWORD",
	"LOG_LEVEL",
	"METRICS_PORT",
}

// saveEnv snapshots the config environment and restores it after the test
func saveEnv(t *testing.T) {
	t.Helper()

	saved := make(map[string]string)
	for _, key := range configKeys {
		saved[key] = os.Getenv(key)
		os.Unsetenv(key)
	}

	t.Cleanup(func() {
		for key, value := range saved {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	saveEnv(t)
	os.Setenv("API_BASE_URL", "https://api.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "wss://api.example.com/api/v1/ws", cfg.WSURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, "file", cfg.SessionBackend)
	assert.Equal(t, ".playerlink/session.json", cfg.StateFile)
	assert.Equal(t, 5, cfg.WSMaxReconnects)
	assert.Equal(t, time.Second, cfg.WSBackoffBase)
	assert.Equal(t, 20, cfg.NotificationPageSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "9100", cfg.MetricsPort)
}

func TestLoadRequiresAPIBaseURL(t *testing.T) {
	saveEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_BASE_URL")
}

func TestLoadOverrides(t *testing.T) {
	saveEnv(t)
	os.Setenv("API_BASE_URL", "http://localhost:4000")
	os.Setenv("WS_URL", "ws://localhost:4001/push")
	os.Setenv("REQUEST_TIMEOUT", "30s")
	os.Setenv("SESSION_BACKEND", "redis")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	os.Setenv("WS_MAX_RECONNECTS", "10")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:4001/push", cfg.WSURL, "explicit WS_URL is not derived")
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "redis", cfg.SessionBackend)
	assert.Equal(t, 10, cfg.WSMaxReconnects)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidation(t *testing.T) {
	t.Run("rejects unknown session backend", func(t *testing.T) {
		saveEnv(t)
		os.Setenv("API_BASE_URL", "http://localhost:4000")
		os.Setenv("SESSION_BACKEND", "etcd")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SESSION_BACKEND")
	})

	t.Run("redis backend requires a redis url", func(t *testing.T) {
		saveEnv(t)
		os.Setenv("API_BASE_URL", "http://localhost:4000")
		os.Setenv("SESSION_BACKEND", "redis")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_URL")
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		saveEnv(t)
		os.Setenv("API_BASE_URL", "http://localhost:4000")
		os.Setenv("LOG_LEVEL", "verbose")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LOG_LEVEL")
	})

	t.Run("rejects unparseable numbers", func(t *testing.T) {
		saveEnv(t)
		os.Setenv("API_BASE_URL", "http://localhost:4000")
		os.Setenv("WS_MAX_RECONNECTS", "many")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "WS_MAX_RECONNECTS")
	})
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "wss://api.example.com/api/v1/ws", deriveWSURL("https://api.example.com"))
	assert.Equal(t, "ws://localhost:4000/api/v1/ws", deriveWSURL("http://localhost:4000/"))
}
