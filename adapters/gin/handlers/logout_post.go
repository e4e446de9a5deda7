package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/session"
)

func HandleLogoutPOST(sm SessionManager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLLogout) {
			ginutil.TooMany(c)
			return
		}
		err := sm.Logout(c.Request.Context(), ginutil.Credential(c))
		// Logging out twice is fine.
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			ginutil.ServerErr(c, "failed_to_logout")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
