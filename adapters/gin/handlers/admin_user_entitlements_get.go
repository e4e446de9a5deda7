package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/entitlements"
)

// HandleAdminUserEntitlementsGET lists a user's grants. When users is set,
// the response also maps each granted_by id to its email.
func HandleAdminUserEntitlementsGET(store entitlements.AdminStore, users UserDirectory, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminUserEntitlementsList) {
			ginutil.TooMany(c)
			return
		}
		items, err := store.ListForUser(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			ginutil.ServerErr(c, "failed_to_list_entitlements")
			return
		}
		if items == nil {
			items = []entitlements.Entitlement{}
		}
		resp := gin.H{"data": items}
		if users != nil {
			seen := map[string]bool{}
			var ids []string
			for _, e := range items {
				if e.GrantedBy != "" && !seen[e.GrantedBy] {
					seen[e.GrantedBy] = true
					ids = append(ids, e.GrantedBy)
				}
			}
			emails, err := users.GetEmailsByIDs(c.Request.Context(), ids)
			if err != nil {
				ginutil.ServerErr(c, "failed_to_lookup_users")
				return
			}
			resp["granted_by_emails"] = emails
		}
		c.JSON(http.StatusOK, resp)
	}
}
