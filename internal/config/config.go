// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all process configuration for ingestd.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Revenue provider key encryption
	RevenueProviderKeySecret string
	RevenueProviderKey       []byte // 32-byte key for AES-256-GCM encryption of Site.revenueProviderKey

	// Stripe
	StripeWebhookSecret string

	// Lemonsqueezy
	LemonsqueezyWebhookSecret string

	// GeoIP
	GeoIPDBPath string

	// CORS
	CORSOrigins []string

	// Cron / internal endpoints auth
	CronSecret string

	// Retention (C8)
	RetentionEnabled         bool
	RetentionRawEventMaxAge  time.Duration // how long RawEvent rows are kept; Session rows share this horizon
	RetentionRollupDailyAge  time.Duration // how long daily rollup/dimension rows are kept
	RetentionRollupHourlyAge time.Duration // how long hourly rollup/dimension rows are kept
	RetentionInterval        time.Duration // how often RetentionGC runs
	RetentionBatchSize       int           // max rows deleted per table per GC pass

	// Rate limiting (C9)
	RateLimitPerKeyPerMinute int
	RateLimitPerIPPerMinute  int

	// Idle shutdown (scale-to-zero)
	IdleTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:ingest.db?_journal=WAL&_timeout=5000"),

		RevenueProviderKeySecret: getEnv("REVENUE_PROVIDER_KEY_SECRET", ""),

		StripeWebhookSecret:       getEnv("STRIPE_WEBHOOK_SECRET", ""),
		LemonsqueezyWebhookSecret: getEnv("LEMONSQUEEZY_WEBHOOK_SECRET", ""),

		GeoIPDBPath: getEnv("GEOIP_MMDB_PATH", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),

		CronSecret: getEnv("CRON_SECRET", ""),

		RetentionEnabled:         getEnvBool("RETENTION_ENABLED", true),
		RetentionRawEventMaxAge:  getEnvDuration("RETENTION_RAW_EVENT_MAX_AGE", 90*24*time.Hour),
		RetentionRollupDailyAge:  getEnvDuration("RETENTION_ROLLUP_DAILY_MAX_AGE", 1095*24*time.Hour),
		RetentionRollupHourlyAge: getEnvDuration("RETENTION_ROLLUP_HOURLY_MAX_AGE", 30*24*time.Hour),
		RetentionInterval:        getEnvDuration("RETENTION_INTERVAL", 6*time.Hour),
		RetentionBatchSize:       getEnvInt("RETENTION_BATCH_SIZE", 1000),

		RateLimitPerKeyPerMinute: getEnvInt("RATE_LIMIT_PER_KEY_PER_MINUTE", 600),
		RateLimitPerIPPerMinute:  getEnvInt("RATE_LIMIT_PER_IP_PER_MINUTE", 120),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	if cfg.RevenueProviderKeySecret == "" {
		return nil, fmt.Errorf("REVENUE_PROVIDER_KEY_SECRET is required")
	}
	cfg.RevenueProviderKey = deriveEncryptionKey(cfg.RevenueProviderKeySecret)

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
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
// HKDF is appropriate for deriving keys from high-entropy secrets; for low-entropy
// passwords use Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("ingest-core-revenue-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
