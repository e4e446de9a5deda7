// Package config loads and validates accessd settings from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/PaulFidika/accesskit/core"
	"github.com/PaulFidika/accesskit/entitlements"
	"github.com/PaulFidika/accesskit/ratelimit"
)

// Config holds accessd configuration.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g. :8080).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// DatabaseURL is the Postgres DSN. Required for serve, migrate and sweep.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Schema holds the access tables (rate_limit_windows, user_sessions, entitlements, purchases).
	Schema string `mapstructure:"DB_SCHEMA"`
	// IdentitySchema holds the identity provider's users table.
	IdentitySchema string `mapstructure:"IDENTITY_SCHEMA"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	// Credential acceptance. Exactly one of JWTSecret or JWKSURL must be set.
	JWTIssuer   string        `mapstructure:"JWT_ISSUER"`
	JWTAudience string        `mapstructure:"JWT_AUDIENCE"`
	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	JWKSURL     string        `mapstructure:"JWKS_URL"`
	JWTSkew     time.Duration `mapstructure:"JWT_SKEW"`
	JWKSRefresh time.Duration `mapstructure:"JWKS_REFRESH"`

	// Failure policies: "fail_open" (default) or "fail_closed".
	RateLimitOnStoreError    string `mapstructure:"RATE_LIMIT_ON_STORE_ERROR"`
	SessionOnStoreError      string `mapstructure:"SESSION_ON_STORE_ERROR"`
	EntitlementsOnStoreError string `mapstructure:"ENTITLEMENTS_ON_STORE_ERROR"`

	// RateLimitAtomic switches the limiter to the store's atomic increment.
	RateLimitAtomic bool `mapstructure:"RATE_LIMIT_ATOMIC"`
	// RateLimits overrides bucket quotas: "bucket=perMinute/perHour,..." (e.g. "access_check=30/500").
	RateLimits string `mapstructure:"RATE_LIMITS"`
	// RedisAddr, when set, keeps rate-limit windows in Redis instead of Postgres.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// AllowAllAuthenticatedUsers grants every product to every valid session.
	AllowAllAuthenticatedUsers bool   `mapstructure:"ALLOW_ALL_AUTHENTICATED_USERS"`
	FamilyPlanSlugs            string `mapstructure:"FAMILY_PLAN_SLUGS"`

	// MaxFirstSightingAge refuses to register credentials issued longer ago than this. 0 disables.
	MaxFirstSightingAge time.Duration `mapstructure:"MAX_FIRST_SIGHTING_AGE"`
	// SweepSchedule is the cron spec for the housekeeping sweeper.
	SweepSchedule string `mapstructure:"SWEEP_SCHEDULE"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("IDENTITY_SCHEMA", "auth")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWKS_URL", "")
	v.SetDefault("JWT_SKEW", "30s")
	v.SetDefault("JWKS_REFRESH", "15m")
	v.SetDefault("RATE_LIMIT_ON_STORE_ERROR", "fail_open")
	v.SetDefault("SESSION_ON_STORE_ERROR", "fail_open")
	v.SetDefault("ENTITLEMENTS_ON_STORE_ERROR", "fail_open")
	v.SetDefault("RATE_LIMIT_ATOMIC", false)
	v.SetDefault("RATE_LIMITS", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ALLOW_ALL_AUTHENTICATED_USERS", false)
	v.SetDefault("FAMILY_PLAN_SLUGS", strings.Join(entitlements.DefaultFamilyPlanSlugs, ","))
	v.SetDefault("MAX_FIRST_SIGHTING_AGE", "0s")
	v.SetDefault("SWEEP_SCHEDULE", "@every 10m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR must be set")
	}
	if c.JWTSecret != "" && c.JWKSURL != "" {
		return errors.New("config: set only one of JWT_SECRET or JWKS_URL")
	}
	for name, p := range map[string]string{
		"RATE_LIMIT_ON_STORE_ERROR":   c.RateLimitOnStoreError,
		"SESSION_ON_STORE_ERROR":      c.SessionOnStoreError,
		"ENTITLEMENTS_ON_STORE_ERROR": c.EntitlementsOnStoreError,
	} {
		if !validPolicy(p) {
			return fmt.Errorf("config: %s must be fail_open or fail_closed, got %q", name, p)
		}
	}
	if c.MaxFirstSightingAge < 0 {
		return errors.New("config: MAX_FIRST_SIGHTING_AGE must not be negative")
	}
	if _, err := c.BucketLimits(); err != nil {
		return err
	}
	return nil
}

// RequireDatabase reports an error when no DSN is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	return nil
}

// RequireCredentials reports an error when no verification key source is configured.
func (c *Config) RequireCredentials() error {
	if c.JWTSecret == "" && c.JWKSURL == "" {
		return errors.New("config: one of JWT_SECRET or JWKS_URL must be set")
	}
	return nil
}

func validPolicy(s string) bool {
	switch s {
	case "", "fail_open", "open", "fail_closed", "closed":
		return true
	}
	return false
}

// Accept returns the credential acceptance settings.
func (c *Config) Accept() core.AcceptConfig {
	ac := core.AcceptConfig{
		Issuer:   c.JWTIssuer,
		Audience: c.JWTAudience,
		Skew:     c.JWTSkew,
		JWKSURL:  c.JWKSURL,
		CacheTTL: c.JWKSRefresh,
	}
	if c.JWTSecret != "" {
		ac.HMACSecret = []byte(c.JWTSecret)
	}
	return ac.Defaulted()
}

func (c *Config) RateLimitPolicy() core.FailurePolicy {
	return core.ParseFailurePolicy(c.RateLimitOnStoreError)
}

func (c *Config) SessionPolicy() core.FailurePolicy {
	return core.ParseFailurePolicy(c.SessionOnStoreError)
}

// EntitlementsPolicy builds the resolver policy.
func (c *Config) EntitlementsPolicy() entitlements.Policy {
	return entitlements.Policy{
		AllowAllAuthenticatedUsers: c.AllowAllAuthenticatedUsers,
		FamilyPlanSlugs:            splitList(c.FamilyPlanSlugs),
		OnStoreError:               core.ParseFailurePolicy(c.EntitlementsOnStoreError),
	}
}

// BucketLimits parses RateLimits. Every returned entry carries the
// configured rate-limit failure policy.
func (c *Config) BucketLimits() (map[string]ratelimit.Limits, error) {
	out := map[string]ratelimit.Limits{}
	policy := c.RateLimitPolicy()
	for _, part := range splitList(c.RateLimits) {
		name, quota, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("config: RATE_LIMITS entry %q must be bucket=perMinute/perHour", part)
		}
		perMin, perHour, _ := strings.Cut(quota, "/")
		m, err := atoiOrZero(perMin)
		if err != nil {
			return nil, fmt.Errorf("config: RATE_LIMITS entry %q: %w", part, err)
		}
		h, err := atoiOrZero(perHour)
		if err != nil {
			return nil, fmt.Errorf("config: RATE_LIMITS entry %q: %w", part, err)
		}
		out[strings.TrimSpace(name)] = ratelimit.Limits{PerMinute: m, PerHour: h, OnStoreError: policy}
	}
	return out, nil
}

func atoiOrZero(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative quota %d", n)
	}
	return n, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
