package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the settlement service reads from the environment.
type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string
	AutoMigrate bool

	ServiceToken string

	VerificationURL     string
	VerificationTimeout time.Duration

	SettlementInterval time.Duration
	FinalizeWindow     time.Duration

	// Optional: distributed settlement lock.
	RedisURL          string
	SettlementLockTTL time.Duration

	// Optional: settlement receipt archive on R2.
	R2 R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough R2 settings are present to upload receipts.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// Load reads configuration from the environment, loading .env first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:          getEnv("APP_ENV", "production"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":5300"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ServiceToken: os.Getenv("SERVICE_TOKEN"),

		VerificationURL: os.Getenv("VERIFICATION_SERVICE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),

		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.VerificationURL == "" {
		return nil, fmt.Errorf("VERIFICATION_SERVICE_URL environment variable is not set")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("SERVICE_TOKEN environment variable is not set")
	}

	var err error
	if cfg.AutoMigrate, err = getBool("DB_AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.VerificationTimeout, err = getDuration("VERIFICATION_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettlementInterval, err = getDuration("SETTLEMENT_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.FinalizeWindow, err = getDuration("FINALIZE_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SettlementLockTTL, err = getDuration("SETTLEMENT_LOCK_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
