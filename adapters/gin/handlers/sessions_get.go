package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
)

func HandleSessionsGET(sm SessionManager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLSessionsList) {
			ginutil.TooMany(c)
			return
		}
		items, err := sm.List(c.Request.Context(), ginutil.UserID(c))
		if err != nil {
			ginutil.ServerErr(c, "failed_to_list_sessions")
			return
		}
		current := ginutil.SessionID(c)
		out := make([]gin.H, 0, len(items))
		for _, s := range items {
			out = append(out, gin.H{
				"id":            s.ID,
				"created_at":    s.CreatedAt,
				"last_accessed": s.LastAccessed,
				"expires_at":    s.ExpiresAt,
				"ip_address":    s.IPAddress,
				"user_agent":    s.UserAgent,
				"revoked":       s.RevokedAt != nil,
				"current":       s.ID == current,
			})
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}
