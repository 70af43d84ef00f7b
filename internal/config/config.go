/**
 * @description
 * This package handles configuration management for the ledger service. It
 * uses Viper to read configuration from environment variables (with an
 * optional .env file), providing a centralized way to manage settings.
 */

package config

import (
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                string  `mapstructure:"DATABASE_URL"`
	RedisURL                   string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string  `mapstructure:"RABBITMQ_URL"`
	JWTSecret                  string  `mapstructure:"JWT_SECRET"`
	TokenTTLHours              int     `mapstructure:"TOKEN_TTL_HOURS"`
	MaxTransferAmount          float64 `mapstructure:"TRANSFER_MAX_AMOUNT"`
	DefaultDailyLimit          float64 `mapstructure:"DEFAULT_DAILY_LIMIT"`
	TransferRateLimitPerMinute int     `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	StorageTimeoutMS           int     `mapstructure:"STORAGE_TIMEOUT_MS"`
	AuditBufferSize            int     `mapstructure:"AUDIT_BUFFER_SIZE"`
	FraudSweepSchedule         string  `mapstructure:"FRAUD_SWEEP_SCHEDULE"`
	FraudSweepBatchSize        int     `mapstructure:"FRAUD_SWEEP_BATCH_SIZE"`
	RateLimitEvictSchedule     string  `mapstructure:"RATE_LIMIT_EVICT_SCHEDULE"`
	CORSAllowedOrigins         string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// MaxTransferAmountDecimal returns the configured per-transfer ceiling as a
// fixed-point value.
func (c Config) MaxTransferAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTransferAmount)
}

// DefaultDailyLimitDecimal returns the configured daily ceiling as a
// fixed-point value.
func (c Config) DefaultDailyLimitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.DefaultDailyLimit)
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	if strings.TrimSpace(c.CORSAllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from environment variables and an optional
// .env file at the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("TOKEN_TTL_HOURS", 24)
	viper.SetDefault("TRANSFER_MAX_AMOUNT", 1000000)
	viper.SetDefault("DEFAULT_DAILY_LIMIT", 50000)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("STORAGE_TIMEOUT_MS", 5000)
	viper.SetDefault("AUDIT_BUFFER_SIZE", 256)
	viper.SetDefault("FRAUD_SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("FRAUD_SWEEP_BATCH_SIZE", 100)
	viper.SetDefault("RATE_LIMIT_EVICT_SCHEDULE", "*/10 * * * *")

	// Bind environment variables explicitly so they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("TOKEN_TTL_HOURS")
	_ = viper.BindEnv("TRANSFER_MAX_AMOUNT")
	_ = viper.BindEnv("DEFAULT_DAILY_LIMIT")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STORAGE_TIMEOUT_MS")
	_ = viper.BindEnv("AUDIT_BUFFER_SIZE")
	_ = viper.BindEnv("FRAUD_SWEEP_SCHEDULE")
	_ = viper.BindEnv("FRAUD_SWEEP_BATCH_SIZE")
	_ = viper.BindEnv("RATE_LIMIT_EVICT_SCHEDULE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}

	if config.MaxTransferAmount <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive TRANSFER_MAX_AMOUNT configured; using default\" value=%f", config.MaxTransferAmount)
		config.MaxTransferAmount = 1000000
	}
	if config.DefaultDailyLimit <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive DEFAULT_DAILY_LIMIT configured; using default\" value=%f", config.DefaultDailyLimit)
		config.DefaultDailyLimit = 50000
	}
	if config.TransferRateLimitPerMinute <= 0 {
		config.TransferRateLimitPerMinute = 10
	}
	if config.StorageTimeoutMS <= 0 {
		config.StorageTimeoutMS = 5000
	}
	if config.TokenTTLHours <= 0 {
		config.TokenTTLHours = 24
	}
	if config.AuditBufferSize <= 0 {
		config.AuditBufferSize = 256
	}
	if config.FraudSweepBatchSize <= 0 {
		config.FraudSweepBatchSize = 100
	}

	return
}
