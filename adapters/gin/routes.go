package authgin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/gin/handlers"
	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/entitlements"
)

// Gate is the subset of *access.Gate the routes need.
type Gate interface {
	Authenticator
	handlers.EntitlementChecker
	handlers.IPThrottler
}

// Deps wires the routes. Users and Ping are optional.
type Deps struct {
	Gate         Gate
	Sessions     handlers.SessionManager
	Entitlements entitlements.AdminStore
	Users        handlers.UserDirectory
	Limiter      ginutil.RateLimiter
	Ping         func(context.Context) error
}

// Register mounts every entry point on r.
func Register(r gin.IRouter, d Deps) {
	r.GET("/healthz", handlers.HandleHealthzGET(d.Ping, d.Gate, ginutil.LimitsFor(d.Limiter, ginutil.RLHealthz)))

	v1 := r.Group("/v1", RequireSession(d.Gate))
	v1.POST("/access/check", handlers.HandleAccessCheckPOST(d.Gate, d.Limiter))
	v1.GET("/me", handleMeGET(d.Limiter))
	v1.GET("/sessions", handlers.HandleSessionsGET(d.Sessions, d.Limiter))
	v1.DELETE("/sessions/:id", handlers.HandleUserSessionDELETE(d.Sessions, d.Limiter))
	v1.POST("/logout", handlers.HandleLogoutPOST(d.Sessions, d.Limiter))

	admin := v1.Group("/admin", RequireAdmin())
	admin.POST("/entitlements", handlers.HandleAdminEntitlementsPOST(d.Entitlements, d.Users, d.Limiter))
	admin.DELETE("/entitlements/:user_id/:app_id", handlers.HandleAdminEntitlementDELETE(d.Entitlements, d.Limiter))
	admin.GET("/users/:user_id/entitlements", handlers.HandleAdminUserEntitlementsGET(d.Entitlements, d.Users, d.Limiter))
	admin.GET("/users/:user_id/sessions", handlers.HandleAdminUserSessionsGET(d.Sessions, d.Limiter))
	admin.DELETE("/users/:user_id/sessions", handlers.HandleAdminUserSessionsDELETE(d.Sessions, d.Limiter))
}

func handleMeGET(rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLMe) {
			ginutil.TooMany(c)
			return
		}
		u, _ := CurrentUser(c)
		c.JSON(http.StatusOK, u)
	}
}
