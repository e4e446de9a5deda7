package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
)

func HandleAdminUserSessionsDELETE(sm SessionManager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminUserSessionsRevokeAll) {
			ginutil.TooMany(c)
			return
		}
		id := c.Param("user_id")
		if id == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		n, err := sm.RevokeAll(c.Request.Context(), id)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_revoke")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "revoked": n})
	}
}
