package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "BASE_URL", "DATABASE_URL", "REVENUE_PROVIDER_KEY_SECRET",
		"STRIPE_WEBHOOK_SECRET", "LEMONSQUEEZY_WEBHOOK_SECRET", "GEOIP_MMDB_PATH",
		"CORS_ORIGINS", "CRON_SECRET", "RETENTION_ENABLED", "RETENTION_INTERVAL",
		"RATE_LIMIT_PER_KEY_PER_MINUTE", "RATE_LIMIT_PER_IP_PER_MINUTE", "IDLE_TIMEOUT",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_RequiresRevenueProviderKeySecret(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when REVENUE_PROVIDER_KEY_SECRET is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("REVENUE_PROVIDER_KEY_SECRET", "test-secret")
	t.Cleanup(func() { os.Unsetenv("REVENUE_PROVIDER_KEY_SECRET") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.RateLimitPerKeyPerMinute != 600 {
		t.Errorf("RateLimitPerKeyPerMinute = %d, want 600", cfg.RateLimitPerKeyPerMinute)
	}
	if len(cfg.RevenueProviderKey) != 32 {
		t.Errorf("RevenueProviderKey length = %d, want 32", len(cfg.RevenueProviderKey))
	}
}

func TestLoad_DerivedKeyIsDeterministic(t *testing.T) {
	clearEnv(t)
	os.Setenv("REVENUE_PROVIDER_KEY_SECRET", "same-secret")
	t.Cleanup(func() { os.Unsetenv("REVENUE_PROVIDER_KEY_SECRET") })

	cfg1, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg2, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if string(cfg1.RevenueProviderKey) != string(cfg2.RevenueProviderKey) {
		t.Error("deriveEncryptionKey is not deterministic for the same secret")
	}
}

func TestLoad_CORSOriginsSplit(t *testing.T) {
	clearEnv(t)
	os.Setenv("REVENUE_PROVIDER_KEY_SECRET", "s")
	os.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Cleanup(func() {
		os.Unsetenv("REVENUE_PROVIDER_KEY_SECRET")
		os.Unsetenv("CORS_ORIGINS")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %v, want 2 entries", cfg.CORSOrigins)
	}
}
