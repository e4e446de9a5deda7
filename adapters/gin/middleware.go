package authgin

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/access"
	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/session"
)

// AdminRole is the credential role required by the admin routes.
const AdminRole = "admin"

// Authenticator is implemented by *access.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string, meta session.RequestMeta) (session.Result, error)
}

func bearer(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireSession admits only requests whose bearer credential maps to a live
// session, and records the caller in the gin context.
func RequireSession(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearer(c)
		if tok == "" {
			ginutil.Deny(c, 401, string(access.DenialInvalidCredential), "missing_credential", 0)
			return
		}
		res, err := auth.Authenticate(c.Request.Context(), tok, session.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		var d *access.Denial
		if errors.As(err, &d) {
			ginutil.Deny(c, d.HTTPStatus(), string(d.Kind), d.Reason, d.RetryAfterSeconds)
			return
		}
		if err != nil {
			ginutil.ServerErr(c, "failed_to_authenticate")
			return
		}
		c.Set(ginutil.KeyUserID, res.UserID)
		c.Set(ginutil.KeySessionID, res.SessionID)
		c.Set(ginutil.KeyClaims, res.Claims)
		c.Set(ginutil.KeyNewSession, res.IsNewSession)
		c.Set(ginutil.KeyDegraded, res.Degraded)
		c.Set(ginutil.KeyCredential, tok)
		c.Next()
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := ginutil.Claims(c)
		if !ok || !cl.HasRole(AdminRole) {
			ginutil.Forbidden(c, "admin_required")
			return
		}
		c.Next()
	}
}
