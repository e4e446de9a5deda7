package ginutil

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/ratelimit"
)

// Rate-limit buckets. Each names the protected operation, so a quota on one
// never bleeds into another.
const (
	RLAccessCheck                = "access_check"
	RLMe                         = "me"
	RLSessionsList               = "sessions_list"
	RLSessionsRevoke             = "sessions_revoke"
	RLLogout                     = "logout"
	RLAdminEntitlementsGrant     = "admin_entitlements_grant"
	RLAdminEntitlementsRevoke    = "admin_entitlements_revoke"
	RLAdminUserEntitlementsList  = "admin_user_entitlements_list"
	RLAdminUserSessionsList      = "admin_user_sessions_list"
	RLAdminUserSessionsRevokeAll = "admin_user_sessions_revoke_all"
	RLHealthz                    = "healthz"
	RLDefault                    = "default"
)

// DefaultLimits are the per-bucket quotas used when no override is configured.
var DefaultLimits = map[string]ratelimit.Limits{
	RLAccessCheck:                {PerMinute: 60, PerHour: 1000},
	RLMe:                         {PerMinute: 60, PerHour: 1000},
	RLSessionsList:               {PerMinute: 30, PerHour: 300},
	RLSessionsRevoke:             {PerMinute: 10, PerHour: 100},
	RLLogout:                     {PerMinute: 10, PerHour: 100},
	RLAdminEntitlementsGrant:     {PerMinute: 30, PerHour: 500},
	RLAdminEntitlementsRevoke:    {PerMinute: 30, PerHour: 500},
	RLAdminUserEntitlementsList:  {PerMinute: 60, PerHour: 1000},
	RLAdminUserSessionsList:      {PerMinute: 60, PerHour: 1000},
	RLAdminUserSessionsRevokeAll: {PerMinute: 10, PerHour: 100},
	RLHealthz:                    {PerMinute: 120},
	RLDefault:                    {PerMinute: 60, PerHour: 1000},
}

// RateLimiter charges one request against a named bucket.
type RateLimiter interface {
	AllowNamed(ctx context.Context, bucket, key string, typ ratelimit.IdentifierType) (ratelimit.Decision, error)
}

// Checker is the limiter contract Buckets delegates to.
type Checker interface {
	Check(ctx context.Context, identifier string, identifierType ratelimit.IdentifierType, functionName string, limits ratelimit.Limits) (ratelimit.Decision, error)
}

// Buckets resolves a bucket name to its limits and runs the check.
type Buckets struct {
	checker Checker
	limits  map[string]ratelimit.Limits
}

// NewBuckets layers overrides on DefaultLimits.
func NewBuckets(checker Checker, overrides map[string]ratelimit.Limits) *Buckets {
	limits := make(map[string]ratelimit.Limits, len(DefaultLimits)+len(overrides))
	for k, v := range DefaultLimits {
		limits[k] = v
	}
	for k, v := range overrides {
		limits[k] = v
	}
	return &Buckets{checker: checker, limits: limits}
}

// Limits returns the quota for bucket, falling back to the default bucket.
func (b *Buckets) Limits(bucket string) ratelimit.Limits {
	if v, ok := b.limits[bucket]; ok {
		return v
	}
	return b.limits[RLDefault]
}

// LimitsFor returns the quota rl applies to bucket, or the default quota when
// rl does not expose its limits.
func LimitsFor(rl RateLimiter, bucket string) ratelimit.Limits {
	if b, ok := rl.(interface{ Limits(string) ratelimit.Limits }); ok {
		return b.Limits(bucket)
	}
	if l, ok := DefaultLimits[bucket]; ok {
		return l
	}
	return DefaultLimits[RLDefault]
}

func (b *Buckets) AllowNamed(ctx context.Context, bucket, key string, typ ratelimit.IdentifierType) (ratelimit.Decision, error) {
	if b == nil || b.checker == nil {
		return ratelimit.Decision{Allowed: true}, nil
	}
	return b.checker.Check(ctx, key, typ, bucket, b.Limits(bucket))
}

const ctxRetryAfter = "ratelimit.retry_after"

// AllowNamed charges the caller against bucket. Authenticated callers are
// keyed by user id, everyone else by client IP. On denial the retry hint is
// stashed for TooMany.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key, typ := UserID(c), ratelimit.IdentifierUser
	if key == "" {
		key, typ = c.ClientIP(), ratelimit.IdentifierIP
	}
	d, err := rl.AllowNamed(c.Request.Context(), bucket, key, typ)
	if err != nil {
		// Caller error (empty key); never let it through silently.
		c.Set(ctxRetryAfter, 1)
		return false
	}
	if !d.Allowed {
		c.Set(ctxRetryAfter, d.RetryAfterSeconds)
		return false
	}
	return true
}

// TooMany writes a 429 with the Retry-After hint from AllowNamed.
func TooMany(c *gin.Context) {
	secs := c.GetInt(ctxRetryAfter)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(429, gin.H{"error": "rate_limited", "retry_after_seconds": secs})
}
