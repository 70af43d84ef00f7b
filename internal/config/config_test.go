package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "TRANSFER_MAX_AMOUNT")
	unsetEnvWithCleanup(t, "DEFAULT_DAILY_LIMIT")
	unsetEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "STORAGE_TIMEOUT_MS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if !cfg.MaxTransferAmountDecimal().Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("expected default max transfer 1000000, got %s", cfg.MaxTransferAmountDecimal())
	}
	if !cfg.DefaultDailyLimitDecimal().Equal(decimal.NewFromInt(50_000)) {
		t.Fatalf("expected default daily limit 50000, got %s", cfg.DefaultDailyLimitDecimal())
	}
	if cfg.TransferRateLimitPerMinute != 10 {
		t.Fatalf("expected default rate limit 10, got %d", cfg.TransferRateLimitPerMinute)
	}
	if cfg.StorageTimeoutMS != 5000 {
		t.Fatalf("expected default storage timeout 5000ms, got %d", cfg.StorageTimeoutMS)
	}
	if cfg.RedisRateLimitPrefix != "ledger:rate_limit" {
		t.Fatalf("expected default redis prefix, got %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "TRANSFER_MAX_AMOUNT", "250000")
	setEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE", "3")
	setEnvWithCleanup(t, "JWT_SECRET", "override-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.ServerPort)
	}
	if !cfg.MaxTransferAmountDecimal().Equal(decimal.NewFromInt(250_000)) {
		t.Fatalf("expected max transfer 250000, got %s", cfg.MaxTransferAmountDecimal())
	}
	if cfg.TransferRateLimitPerMinute != 3 {
		t.Fatalf("expected rate limit 3, got %d", cfg.TransferRateLimitPerMinute)
	}
	if cfg.JWTSecret != "override-secret" {
		t.Fatalf("expected JWT secret from env, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_MAX_AMOUNT", "-5")
	setEnvWithCleanup(t, "DEFAULT_DAILY_LIMIT", "0")
	setEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxTransferAmount != 1_000_000 {
		t.Fatalf("expected invalid max transfer coerced to default, got %f", cfg.MaxTransferAmount)
	}
	if cfg.DefaultDailyLimit != 50_000 {
		t.Fatalf("expected invalid daily limit coerced to default, got %f", cfg.DefaultDailyLimit)
	}
	if cfg.TransferRateLimitPerMinute != 10 {
		t.Fatalf("expected invalid rate limit coerced to default, got %d", cfg.TransferRateLimitPerMinute)
	}
}

func TestLoadConfig_AllowedOrigins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com ,")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %v", origins)
	}
	if origins[0] != "https://app.example.com" || origins[1] != "https://admin.example.com" {
		t.Fatalf("origins not trimmed correctly: %v", origins)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
