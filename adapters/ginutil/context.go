package ginutil

import (
	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/core"
)

// Keys set by the session middleware.
const (
	KeyUserID     = "auth.user_id"
	KeySessionID  = "auth.session_id"
	KeyClaims     = "auth.claims"
	KeyNewSession = "auth.is_new_session"
	KeyCredential = "auth.credential"
	KeyDegraded   = "auth.degraded"
)

func UserID(c *gin.Context) string     { return c.GetString(KeyUserID) }
func SessionID(c *gin.Context) string  { return c.GetString(KeySessionID) }
func Credential(c *gin.Context) string { return c.GetString(KeyCredential) }

// Claims returns the verified claims, if the session middleware ran.
func Claims(c *gin.Context) (core.Claims, bool) {
	v, ok := c.Get(KeyClaims)
	if !ok {
		return core.Claims{}, false
	}
	cl, ok := v.(core.Claims)
	return cl, ok
}
