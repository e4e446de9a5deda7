package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/entitlements"
)

// HandleAdminEntitlementDELETE deactivates a grant; rows are never deleted.
func HandleAdminEntitlementDELETE(store entitlements.AdminStore, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminEntitlementsRevoke) {
			ginutil.TooMany(c)
			return
		}
		uid, app := c.Param("user_id"), c.Param("app_id")
		if uid == "" || app == "" {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		ok, err := store.Deactivate(c.Request.Context(), uid, app)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_deactivate")
			return
		}
		if !ok {
			ginutil.NotFound(c, "entitlement_not_found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
