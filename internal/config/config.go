// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds everything the process needs. Values are immutable after Load.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string
	// DatabaseURL is the Postgres DSN. Empty disables the store (tests only).
	DatabaseURL string
	// JWTSecret signs access tokens (HS256). Minimum 32 bytes.
	JWTSecret string
	// AccessTTL bounds access token lifetime.
	AccessTTL time.Duration
	// RefreshTTL bounds refresh token lifetime.
	RefreshTTL time.Duration
	// ResetTTL bounds password reset token lifetime.
	ResetTTL time.Duration
	// BcryptCost is the password hashing work factor.
	BcryptCost int
	// AgentURL is the base URL of the remote Windows-service agent.
	AgentURL string
	// AgentKey is the shared secret for signing agent payloads.
	AgentKey string
	// AgentAttempts caps delivery attempts per settings push.
	AgentAttempts int
	// AgentRetryDelay is the pause between delivery attempts.
	AgentRetryDelay time.Duration
	// AgentTimeout bounds each individual delivery attempt.
	AgentTimeout time.Duration
	// RateBurst and RatePerSecond shape the per-IP token bucket on auth routes.
	RateBurst     int
	RatePerSecond int
}

// Load reads .env if present (missing file is fine, e.g. in CI), then builds
// and validates Config from the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getEnv("PROSITE_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("PROSITE_PG_DSN"),
		JWTSecret:       os.Getenv("PROSITE_JWT_SECRET"),
		AgentURL:        os.Getenv("PROSITE_AGENT_URL"),
		AgentKey:        os.Getenv("PROSITE_AGENT_KEY"),
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      30 * 24 * time.Hour,
		ResetTTL:        30 * time.Minute,
		BcryptCost:      bcrypt.DefaultCost,
		AgentAttempts:   3,
		AgentRetryDelay: time.Second,
		AgentTimeout:    10 * time.Second,
		RateBurst:       10,
		RatePerSecond:   5,
	}

	var err error
	if cfg.AccessTTL, err = getDuration("PROSITE_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getDuration("PROSITE_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.ResetTTL, err = getDuration("PROSITE_RESET_TTL", cfg.ResetTTL); err != nil {
		return Config{}, err
	}
	if cfg.AgentRetryDelay, err = getDuration("PROSITE_AGENT_RETRY_DELAY", cfg.AgentRetryDelay); err != nil {
		return Config{}, err
	}
	if cfg.AgentTimeout, err = getDuration("PROSITE_AGENT_TIMEOUT", cfg.AgentTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = getInt("PROSITE_BCRYPT_COST", cfg.BcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.AgentAttempts, err = getInt("PROSITE_AGENT_ATTEMPTS", cfg.AgentAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = getInt("PROSITE_RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = getInt("PROSITE_RATE_PER_SECOND", cfg.RatePerSecond); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the service cannot safely run with.
// A bad signing secret or agent key is fatal at startup, not per request.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config: PROSITE_ADDR must be set")
	}
	if len(strings.TrimSpace(c.JWTSecret)) < 32 {
		return errors.New("config: PROSITE_JWT_SECRET must be at least 32 bytes")
	}
	if c.AgentURL != "" && strings.TrimSpace(c.AgentKey) == "" {
		return errors.New("config: PROSITE_AGENT_KEY is required when the agent URL is set")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: PROSITE_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.AgentAttempts < 1 {
		return errors.New("config: PROSITE_AGENT_ATTEMPTS must be at least 1")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.ResetTTL >= c.RefreshTTL {
		return errors.New("config: PROSITE_RESET_TTL must be shorter than PROSITE_REFRESH_TTL")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
