package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/access"
	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/ratelimit"
)

// HandleHealthzGET reports whether the shared store answers. It is
// unauthenticated, so callers are throttled by client IP. ping may be nil.
func HandleHealthzGET(ping func(context.Context) error, ips IPThrottler, limits ratelimit.Limits) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ips != nil {
			_, err := ips.CheckIP(c.Request.Context(), c.ClientIP(), ginutil.RLHealthz, limits)
			var d *access.Denial
			if errors.As(err, &d) {
				ginutil.Deny(c, d.HTTPStatus(), string(d.Kind), d.Reason, d.RetryAfterSeconds)
				return
			}
			if err != nil {
				ginutil.ServerErr(c, "failed_to_rate_limit")
				return
			}
		}
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
