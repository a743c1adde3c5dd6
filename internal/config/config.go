package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the playerlink daemon
type Config struct {
	// Backend endpoints
	APIBaseURL string
	WSURL      string

	// HTTP client configuration
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Session storage configuration
	SessionBackend string
	StateFile      string
	RedisURL       string
	InstanceID     string

	// Feed recorder configuration (disabled when empty)
	DatabaseURL string

	// Live channel configuration
	WSMaxReconnects int
	WSBackoffBase   time.Duration

	// Notification configuration
	NotificationPageSize int

	// Daemon login credentials (optional)
	PlayerEmail    string
	PlayerPassword string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsPort string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		APIBaseURL:     getEnv("API_BASE_URL", ""),
		WSURL:          getEnv("WS_URL", ""),
		SessionBackend: getEnv("SESSION_BACKEND", "file"),
		StateFile:      getEnv("STATE_FILE", ".playerlink/session.json"),
		RedisURL:       getEnv("REDIS_URL", ""),
		InstanceID:     getEnv("INSTANCE_ID", "default"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		PlayerEmail:    getEnv("PLAYER_EMAIL", ""),
		PlayerPassword: getEnv("PLAYER_PASSWORD", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsPort:    getEnv("METRICS_PORT", "9100"),
	}

	if cfg.APIBaseURL == "" {
		return cfg, fmt.Errorf("API_BASE_URL environment variable is required")
	}

	// Derive the websocket URL from the API base when not set explicitly
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.APIBaseURL)
	}

	var err error
	cfg.RequestTimeout, err = parseDurationEnv("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	cfg.RateLimitRPS, err = parseFloatEnv("RATE_LIMIT_RPS", 10)
	if err != nil {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	cfg.RateLimitBurst, err = parseIntEnv("RATE_LIMIT_BURST", 20)
	if err != nil {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cfg.WSMaxReconnects, err = parseIntEnv("WS_MAX_RECONNECTS", 5)
	if err != nil {
		return cfg, fmt.Errorf("invalid WS_MAX_RECONNECTS: %w", err)
	}

	cfg.WSBackoffBase, err = parseDurationEnv("WS_BACKOFF_BASE", time.Second)
	if err != nil {
		return cfg, fmt.Errorf("invalid WS_BACKOFF_BASE: %w", err)
	}

	cfg.NotificationPageSize, err = parseIntEnv("NOTIFICATION_PAGE_SIZE", 20)
	if err != nil {
		return cfg, fmt.Errorf("invalid NOTIFICATION_PAGE_SIZE: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid
func (c Config) validate() error {
	switch c.SessionBackend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("invalid SESSION_BACKEND: %s (must be one of: file, redis, memory)", c.SessionBackend)
	}

	if c.SessionBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is redis")
	}

	if c.SessionBackend == "file" && c.StateFile == "" {
		return fmt.Errorf("STATE_FILE is required when SESSION_BACKEND is file")
	}

	if c.WSMaxReconnects < 1 {
		return fmt.Errorf("WS_MAX_RECONNECTS must be at least 1")
	}

	if c.NotificationPageSize < 1 {
		return fmt.Errorf("NOTIFICATION_PAGE_SIZE must be at least 1")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// deriveWSURL maps an http(s) API base to the ws(s) push endpoint
func deriveWSURL(baseURL string) string {
	wsURL := baseURL
	if strings.HasPrefix(wsURL, "https://") {
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	} else if strings.HasPrefix(wsURL, "http://") {
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return strings.TrimRight(wsURL, "/") + "/api/v1/ws"
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseFloatEnv parses a float environment variable with a default value
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(str, 64)
}

// parseDurationEnv parses a duration environment variable with a default value
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(str)
}
