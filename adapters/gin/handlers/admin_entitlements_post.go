package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/entitlements"
)

type grantReq struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	AppID     string     `json:"app_id"`
	GrantType string     `json:"grant_type"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason"`
}

func HandleAdminEntitlementsPOST(store entitlements.AdminStore, users UserDirectory, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminEntitlementsGrant) {
			ginutil.TooMany(c)
			return
		}
		var req grantReq
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		ctx := c.Request.Context()
		uid := strings.TrimSpace(req.UserID)
		if users != nil {
			var lookup = users.GetByID
			key := uid
			if uid == "" {
				lookup, key = users.GetByEmail, req.Email
			}
			u, err := lookup(ctx, key)
			if err != nil {
				ginutil.ServerErr(c, "failed_to_lookup_user")
				return
			}
			if u == nil {
				ginutil.NotFound(c, "user_not_found")
				return
			}
			uid = u.ID
		}
		gt := entitlements.GrantType(req.GrantType)
		if gt == "" {
			gt = entitlements.GrantManual
		}
		e, err := store.Grant(ctx, entitlements.Grant{
			UserID:    uid,
			AppID:     strings.TrimSpace(req.AppID),
			GrantType: gt,
			ExpiresAt: req.ExpiresAt,
			GrantedBy: ginutil.UserID(c),
			Reason:    req.Reason,
		})
		if errors.Is(err, entitlements.ErrInvalidGrant) {
			ginutil.BadRequest(c, "invalid_grant")
			return
		}
		if err != nil {
			ginutil.ServerErr(c, "failed_to_grant")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": e})
	}
}
