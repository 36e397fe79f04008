package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Monitor   MonitorConfig
	Log       LogConfig
	Stream    StreamConfig

	// MetricsAddr is the listen address of the /metrics endpoint; empty disables it
	MetricsAddr string
	// ThresholdsFile optionally overrides the default anomaly thresholds
	ThresholdsFile string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. An empty Host means in-process stores.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled          bool
	Endpoint         string
	APIKey           string
	Model            string
	Timeout          time.Duration
	BreakerFailures  int
	BreakerOpenAfter time.Duration
}

// CacheConfig holds cache TTLs
type CacheConfig struct {
	AnalysisTTL time.Duration
	ReportTTL   time.Duration
	AlertsTTL   time.Duration
	Grace       time.Duration
	OpTimeout   time.Duration
	LockTTL     time.Duration
}

// RateLimitConfig holds limiter behaviour for narrative generation
type RateLimitConfig struct {
	FailOpen bool
	Timeout  time.Duration
	KeyID    string
	Tier     string
}

// MonitorConfig holds the background detection loop settings
type MonitorConfig struct {
	Interval time.Duration
	Listen   bool
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// StreamConfig holds the websocket alert stream settings. An empty URL disables streaming.
type StreamConfig struct {
	URL          string
	Token        string
	PingInterval time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     getEnvOrDefault("DB_NAME", "competitive_insights"),
			User:     getEnvOrDefault("DB_USER", "insights"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", ""),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		LLM: LLMConfig{
			Enabled:          getEnvBool("LLM_ENABLED", false),
			Endpoint:         getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:           getEnvOrDefault("LLM_API_KEY", ""),
			Model:            getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			Timeout:          getEnvDuration("LLM_TIMEOUT", 30*time.Second),
			BreakerFailures:  getEnvInt("LLM_BREAKER_FAILURES", 3),
			BreakerOpenAfter: getEnvDuration("LLM_BREAKER_OPEN", time.Minute),
		},

		Cache: CacheConfig{
			AnalysisTTL: getEnvDuration("CACHE_ANALYSIS_TTL", time.Hour),
			ReportTTL:   getEnvDuration("CACHE_REPORT_TTL", 24*time.Hour),
			AlertsTTL:   getEnvDuration("CACHE_ALERTS_TTL", 5*time.Minute),
			Grace:       getEnvDuration("CACHE_GRACE", 5*time.Minute),
			OpTimeout:   getEnvDuration("CACHE_OP_TIMEOUT", 500*time.Millisecond),
			LockTTL:     getEnvDuration("CACHE_LOCK_TTL", 30*time.Second),
		},

		RateLimit: RateLimitConfig{
			FailOpen: getEnvBool("RATE_LIMIT_FAIL_OPEN", false),
			Timeout:  getEnvDuration("RATE_LIMIT_TIMEOUT", 200*time.Millisecond),
			KeyID:    getEnvOrDefault("RATE_LIMIT_KEY", "service"),
			Tier:     getEnvOrDefault("RATE_LIMIT_TIER", "pro"),
		},

		Monitor: MonitorConfig{
			Interval: getEnvDuration("MONITOR_INTERVAL", 15*time.Minute),
			Listen:   getEnvBool("MONITOR_LISTEN", true),
		},

		Log: LogConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "json"),
			File:       getEnvOrDefault("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},

		Stream: StreamConfig{
			URL:          getEnvOrDefault("ALERT_STREAM_URL", ""),
			Token:        getEnvOrDefault("ALERT_STREAM_TOKEN", ""),
			PingInterval: getEnvDuration("ALERT_STREAM_PING", 30*time.Second),
		},

		MetricsAddr:    getEnvOrDefault("METRICS_ADDR", ":9090"),
		ThresholdsFile: getEnvOrDefault("THRESHOLDS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when LLM_ENABLED=true")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	if c.Cache.AnalysisTTL <= 0 || c.Cache.ReportTTL <= 0 || c.Cache.AlertsTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	switch c.RateLimit.Tier {
	case "free", "pro", "enterprise":
	default:
		return fmt.Errorf("unknown RATE_LIMIT_TIER %q", c.RateLimit.Tier)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvBool accepts true/false/1/0/yes/no
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvDuration parses Go duration strings such as "90s" or "15m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
