package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration. An empty URI keeps run history in memory.
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
	MongoMaxPool  int

	// HTTP Server Configuration
	HTTPPort         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Run Configuration
	StepInterval      time.Duration
	DefaultSeries     string
	MaxConcurrentRuns int
	ProgressBuffer    int
	StatusRetention   time.Duration
	ShutdownTimeout   time.Duration

	// Webhook Configuration
	WebhookURL         string
	WebhookTimeout     time.Duration
	WebhookMaxAttempts int
	WebhookNotifyEvery int

	// Scheduler Configuration
	SchedulerEnabled bool
	ScheduledRuns    string
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// MongoDB
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "pijob"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,
		MongoMaxPool:  getIntEnv("MONGO_MAX_POOL_SIZE", 20),

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 0) * time.Second,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Runs
		StepInterval:      getDurationEnv("STEP_INTERVAL_MS", 1000) * time.Millisecond,
		DefaultSeries:     getEnv("DEFAULT_SERIES", "leibniz"),
		MaxConcurrentRuns: getIntEnv("MAX_CONCURRENT_RUNS", 100),
		ProgressBuffer:    getIntEnv("PROGRESS_BUFFER", 64),
		StatusRetention:   getDurationEnv("STATUS_RETENTION_SEC", 3600) * time.Second,
		ShutdownTimeout:   getDurationEnv("SHUTDOWN_TIMEOUT_SEC", 30) * time.Second,

		// Webhook
		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		WebhookTimeout:     getDurationEnv("WEBHOOK_TIMEOUT_SEC", 10) * time.Second,
		WebhookMaxAttempts: getIntEnv("WEBHOOK_MAX_ATTEMPTS", 3),
		WebhookNotifyEvery: getIntEnv("WEBHOOK_NOTIFY_EVERY", 0),

		// Scheduler
		SchedulerEnabled: getBoolEnv("SCHEDULER_ENABLED", false),
		ScheduledRuns:    getEnv("SCHEDULED_RUNS", ""),
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.StepInterval < 0 {
		return errors.New("STEP_INTERVAL_MS must not be negative")
	}
	if c.MaxConcurrentRuns < 1 {
		return errors.Errorf("MAX_CONCURRENT_RUNS must be positive, got %d", c.MaxConcurrentRuns)
	}
	if c.MongoMaxPool < 1 {
		return errors.Errorf("MONGO_MAX_POOL_SIZE must be positive, got %d", c.MongoMaxPool)
	}
	if c.ProgressBuffer < 1 {
		return errors.Errorf("PROGRESS_BUFFER must be positive, got %d", c.ProgressBuffer)
	}
	if c.WebhookNotifyEvery < 0 {
		return errors.New("WEBHOOK_NOTIFY_EVERY must not be negative")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return errors.Errorf("WEBHOOK_URL must be an http(s) URL, got %q", c.WebhookURL)
	}
	if c.SchedulerEnabled && c.ScheduledRuns == "" {
		return errors.New("SCHEDULER_ENABLED requires SCHEDULED_RUNS")
	}
	return nil
}

// Helper functions
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
		slog.Warn("Invalid integer value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue))
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		slog.Warn("Invalid boolean value, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}
