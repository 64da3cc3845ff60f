package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// OwnerLeavePolicy decides what happens when a room owner tries to leave.
type OwnerLeavePolicy string

const (
	// OwnerLeaveForbid rejects the leave until ownership is transferred.
	OwnerLeaveForbid OwnerLeavePolicy = "forbid"
	// OwnerLeavePromote auto-promotes the longest-standing admin (or member).
	OwnerLeavePromote OwnerLeavePolicy = "promote"
)

// Config holds validated environment configuration
type Config struct {
	Port           string
	GoEnv          string
	LogLevel       string
	AllowedOrigins []string

	// Core limits
	MaxMessageBytes        int
	MaxUploadBytes         int64
	MaxReactionsPerMessage int
	OwnerLeave             OwnerLeavePolicy

	// Optional Redis-backed rate limit store
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Rate limits (ulule/limiter formatted rates)
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIMessages string

	// Optional OTLP trace collector
	OtelEndpoint string
}

// ValidateEnv validates all environment variables and returns a Config.
// Returns an error listing every invalid variable rather than the first.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// PORT (defaults to 8080)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// WS_ORIGIN_ALLOW: comma-separated Origin allowlist for WS upgrades.
	if raw := os.Getenv("WS_ORIGIN_ALLOW"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	// LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of debug, info, warn, error (got '%s')", cfg.LogLevel))
	}

	// GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// OWNER_LEAVE_POLICY (defaults to "forbid")
	cfg.OwnerLeave = OwnerLeavePolicy(getEnvOrDefault("OWNER_LEAVE_POLICY", string(OwnerLeaveForbid)))
	if cfg.OwnerLeave != OwnerLeaveForbid && cfg.OwnerLeave != OwnerLeavePromote {
		errs = append(errs, fmt.Sprintf("OWNER_LEAVE_POLICY must be 'forbid' or 'promote' (got '%s')", cfg.OwnerLeave))
	}

	// Limits
	cfg.MaxMessageBytes = getEnvInt("MAX_MESSAGE_BYTES", 4000, &errs)
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20, &errs))
	cfg.MaxReactionsPerMessage = getEnvInt("MAX_REACTIONS_PER_MESSAGE", 20, &errs)

	// Conditional: REDIS_ADDR (used by the rate limiter if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Rate limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "500-M")

	// Optional tracing
	cfg.OtelEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
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

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"origins", strings.Join(cfg.AllowedOrigins, ","),
		"owner_leave_policy", string(cfg.OwnerLeave),
		"max_message_bytes", cfg.MaxMessageBytes,
		"max_upload_bytes", cfg.MaxUploadBytes,
		"redis_enabled", cfg.RedisEnabled,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt parses a positive integer variable, recording any error in errs.
func getEnvInt(key string, defaultValue int, errs *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer (got '%s')", key, raw))
		return defaultValue
	}
	return v
}
