package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration.
type Config struct {
	// Required variables
	Port string

	// Optional variables with defaults
	DevelopmentMode bool
	AllowedOrigins  string
	LogFile         string

	// Room lifecycle (defaults match the product: 1h live, 6h cooldown)
	RoomTTL          time.Duration
	DownloadCooldown time.Duration

	// Redis (optional; enables cross-instance room-code reservation and
	// a shared rate-limit store)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Cloud recording uploads (optional)
	RecordingUploadURL string

	// Tracing (optional)
	TracingEnabled    bool
	OtelCollectorAddr string

	// Rate limits (ulule/limiter formatted strings, M = minute, H = hour)
	RateLimitAPIGlobal string
	RateLimitAPIRooms  string
	RateLimitWsIP      string
}

// ValidateEnv validates all required environment variables and returns a
// Config. Returns an error listing every missing or invalid variable.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.LogFile = os.Getenv("LOG_FILE")

	var err error
	cfg.RoomTTL, err = durationOrDefault("ROOM_TTL", time.Hour)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.DownloadCooldown, err = durationOrDefault("DOWNLOAD_COOLDOWN", 6*time.Hour)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Conditional: REDIS_ADDR (only used when REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.RecordingUploadURL = os.Getenv("RECORDING_UPLOAD_URL")

	cfg.TracingEnabled = os.Getenv("TRACING_ENABLED") == "true"
	if cfg.TracingEnabled {
		cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OtelCollectorAddr == "" {
			errs = append(errs, "OTEL_COLLECTOR_ADDR is required when TRACING_ENABLED=true")
		}
	}

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

// durationOrDefault parses an env variable as a Go duration string.
func durationOrDefault(key string, def time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like '1h' or '30m' (got '%s')", key, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got '%s')", key, raw)
	}
	return d, nil
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// getEnvOrDefault returns the value of the environment variable or a default.
// An empty value counts as unset.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// AllowedOriginList splits the configured origins, falling back to the given
// defaults when unset.
func (c *Config) AllowedOriginList(defaults []string) []string {
	if c.AllowedOrigins == "" {
		return defaults
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return defaults
	}
	return origins
}
