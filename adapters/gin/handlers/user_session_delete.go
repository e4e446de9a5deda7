package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/session"
)

func HandleUserSessionDELETE(sm SessionManager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLSessionsRevoke) {
			ginutil.TooMany(c)
			return
		}
		sid := c.Param("id")
		if strings.TrimSpace(sid) == "" {
			ginutil.BadRequest(c, "missing_session_id")
			return
		}
		err := sm.Revoke(c.Request.Context(), ginutil.UserID(c), sid)
		if errors.Is(err, session.ErrSessionNotFound) {
			ginutil.NotFound(c, "session_not_found")
			return
		}
		if err != nil {
			ginutil.ServerErr(c, "failed_to_revoke")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
