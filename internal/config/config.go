package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Storage  StorageConfig
	Saga     SagaConfig
	Breaker  BreakerConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	// AutoMigrate creates the ledger tables on startup.
	AutoMigrate bool
}

// RedisConfig holds Redis configuration.
// Without Redis the ledger lock is process-local and summaries are not cached.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// StorageConfig selects the event store.
type StorageConfig struct {
	Driver   string // "postgres" or "bolt"
	BoltPath string
}

// SagaConfig holds reservation saga timing.
type SagaConfig struct {
	ProviderTimeout         time.Duration
	CompensationTimeout     time.Duration
	CompensationConcurrency int
	VoidAttempts            int
	VoidBackoff             time.Duration
}

// BreakerConfig holds the per-provider circuit breaker settings.
type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures int
	Timeout             time.Duration
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "payments"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "payments-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Storage: StorageConfig{
			Driver:   getEnv("STORAGE_DRIVER", "postgres"),
			BoltPath: getEnv("BOLT_PATH", "payments.db"),
		},
		Saga: SagaConfig{
			ProviderTimeout:         getDurationEnv("SAGA_PROVIDER_TIMEOUT", 5*time.Second),
			CompensationTimeout:     getDurationEnv("SAGA_COMPENSATION_TIMEOUT", 30*time.Second),
			CompensationConcurrency: getIntEnv("SAGA_COMPENSATION_CONCURRENCY", 4),
			VoidAttempts:            getIntEnv("SAGA_VOID_ATTEMPTS", 3),
			VoidBackoff:             getDurationEnv("SAGA_VOID_BACKOFF", 100*time.Millisecond),
		},
		Breaker: BreakerConfig{
			Enabled:             getBoolEnv("BREAKER_ENABLED", true),
			ConsecutiveFailures: getIntEnv("BREAKER_CONSECUTIVE_FAILURES", 5),
			Timeout:             getDurationEnv("BREAKER_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBoolEnv("LOG_DEVELOPMENT", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
