package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/accesskit/core"
	"github.com/PaulFidika/accesskit/entitlements"
	"github.com/PaulFidika/accesskit/ratelimit"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "public", cfg.Schema)
	assert.Equal(t, "auth", cfg.IdentitySchema)
	assert.Equal(t, 30*time.Second, cfg.JWTSkew)
	assert.Equal(t, 15*time.Minute, cfg.JWKSRefresh)
	assert.Equal(t, "@every 10m", cfg.SweepSchedule)
	assert.False(t, cfg.RateLimitAtomic)
	assert.Equal(t, core.FailOpen, cfg.RateLimitPolicy())
	assert.Equal(t, core.FailOpen, cfg.SessionPolicy())

	p := cfg.EntitlementsPolicy()
	assert.False(t, p.AllowAllAuthenticatedUsers)
	assert.Equal(t, entitlements.DefaultFamilyPlanSlugs, p.FamilyPlanSlugs)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_ISSUER", "https://id.example.com")
	t.Setenv("RATE_LIMIT_ON_STORE_ERROR", "fail_closed")
	t.Setenv("ALLOW_ALL_AUTHENTICATED_USERS", "true")
	t.Setenv("MAX_FIRST_SIGHTING_AGE", "24h")
	t.Setenv("RATE_LIMITS", "access_check=30/500, healthz=10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 24*time.Hour, cfg.MaxFirstSightingAge)
	assert.Equal(t, core.FailClosed, cfg.RateLimitPolicy())
	assert.True(t, cfg.EntitlementsPolicy().AllowAllAuthenticatedUsers)

	ac := cfg.Accept()
	assert.Equal(t, []byte("s3cret"), ac.HMACSecret)
	assert.Equal(t, []string{"HS256"}, ac.Algorithms)
	assert.Equal(t, "https://id.example.com", ac.Issuer)

	limits, err := cfg.BucketLimits()
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Limits{PerMinute: 30, PerHour: 500, OnStoreError: core.FailClosed}, limits["access_check"])
	assert.Equal(t, ratelimit.Limits{PerMinute: 10, OnStoreError: core.FailClosed}, limits["healthz"])
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"both key sources", map[string]string{"JWT_SECRET": "x", "JWKS_URL": "https://id.example.com/jwks"}},
		{"unknown policy", map[string]string{"SESSION_ON_STORE_ERROR": "sometimes"}},
		{"malformed limits", map[string]string{"RATE_LIMITS": "access_check"}},
		{"non-numeric limits", map[string]string{"RATE_LIMITS": "access_check=ten/100"}},
		{"negative limits", map[string]string{"RATE_LIMITS": "access_check=-1/100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config:")
		})
	}
}

func TestRequireHelpers(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireDatabase())
	assert.Error(t, cfg.RequireCredentials())

	cfg.DatabaseURL = "postgres://localhost/access"
	cfg.JWKSURL = "https://id.example.com/.well-known/jwks.json"
	assert.NoError(t, cfg.RequireDatabase())
	assert.NoError(t, cfg.RequireCredentials())
}
