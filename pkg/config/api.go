package config

import (
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// APIConfig holds runtime configuration for the user service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	LogFormat          string
	StoreBackend       string
	DatabaseURL        string
	MigrationsDir      string
	WriteRateLimit     int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	WebhookURL         string
	WebhookToken       string
	ShutdownTimeout    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               listenAddr(),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		LogFormat:          GetString("LOG_FORMAT", "json"),
		StoreBackend:       strings.ToLower(strings.TrimSpace(GetString("STORE_BACKEND", BackendMemory))),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://userdesk:userdesk@db:5432/userdesk?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", ""),
		WriteRateLimit:     GetInt("RATE_LIMIT_WRITES_PER_MIN", 60),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		WebhookURL:         strings.TrimSpace(GetString("USER_WEBHOOK_URL", "")),
		WebhookToken:       GetString("USER_WEBHOOK_TOKEN", ""),
		ShutdownTimeout:    GetSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
	}
}

// IsDevelopment reports whether error details may be shown to clients.
func (c APIConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// API_ADDR wins; a bare PORT is accepted for platforms that only set that.
func listenAddr() string {
	if addr := strings.TrimSpace(GetString("API_ADDR", "")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(GetString("PORT", "")); port != "" {
		return ":" + port
	}
	return ":3000"
}
