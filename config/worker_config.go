package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	RedisURL    string

	// JWT (operator API)
	JWTSecret string

	// Credential encryption at rest
	EncryptionKey string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Push notifications
	WebhookURL       string
	WebhookTokenKey  string
	WatchRenewCron   string
	WatchRenewWindow time.Duration
	WebhookDedupTTL  time.Duration

	// Sync pass
	ProviderTimeout   time.Duration
	SyncLockTTL       time.Duration
	SyncLockWait      time.Duration
	ImportHorizonDays int
	BatchCacheTTL     time.Duration
	ClosureKeywords   []string
	BusinessTimezone  string

	// Worker
	WorkerID        string
	WorkerMax       int
	WorkerQueueSize int
	SyncJobTimeout  time.Duration

	// Consumer (Redis Stream)
	ConsumerGroup           string
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int

	// CORS
	AllowedOrigins []string

	// Scheduler
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Push notifications
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		WebhookTokenKey:  getEnv("WEBHOOK_TOKEN_KEY", ""),
		WatchRenewCron:   getEnv("WATCH_RENEW_CRON", "@every 1h"),
		WatchRenewWindow: getEnvDuration("WATCH_RENEW_WINDOW", 24*time.Hour),
		WebhookDedupTTL:  getEnvDuration("WEBHOOK_DEDUP_TTL", 10*time.Minute),

		// Sync pass
		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", 20*time.Second),
		SyncLockTTL:       getEnvDuration("SYNC_LOCK_TTL", 5*time.Minute),
		SyncLockWait:      getEnvDuration("SYNC_LOCK_WAIT", 30*time.Second),
		ImportHorizonDays: getEnvInt("IMPORT_HORIZON_DAYS", 90),
		BatchCacheTTL:     getEnvDuration("BATCH_CACHE_TTL", 30*time.Minute),
		ClosureKeywords:   getEnvSlice("CLOSURE_KEYWORDS", nil),
		BusinessTimezone:  getEnv("BUSINESS_TIMEZONE", "UTC"),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:       getEnvInt("WORKER_MAX", 8),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 500),
		SyncJobTimeout:  getEnvDuration("SYNC_JOB_TIMEOUT", 3*time.Minute),

		// Consumer
		ConsumerGroup:           getEnv("CONSUMER_GROUP", "booking-sync-workers"),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}

	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", cfg.BusinessTimezone, err)
	}
	if cfg.ImportHorizonDays <= 0 {
		return nil, fmt.Errorf("IMPORT_HORIZON_DAYS must be positive, got %d", cfg.ImportHorizonDays)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// Location returns the business timezone used to render appointment dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ImportHorizon is how far ahead of now a sync pass fetches events.
func (c *Config) ImportHorizon() time.Duration {
	return time.Duration(c.ImportHorizonDays) * 24 * time.Hour
}

// PassTimeout bounds one sync pass. It stays below SyncLockTTL so the lock cannot expire under a running pass.
func (c *Config) PassTimeout() time.Duration {
	return c.SyncLockTTL * 4 / 5
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
