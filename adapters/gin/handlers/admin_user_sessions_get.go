package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/adapters/ginutil"
	"github.com/PaulFidika/accesskit/session"
)

func HandleAdminUserSessionsGET(sm SessionManager, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminUserSessionsList) {
			ginutil.TooMany(c)
			return
		}
		id := c.Param("user_id")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		size, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		if page < 1 {
			page = 1
		}
		if size < 1 || size > 200 {
			size = 50
		}
		items, err := sm.List(c.Request.Context(), id)
		if err != nil {
			ginutil.ServerErr(c, "failed_to_list_sessions")
			return
		}
		start := min((page-1)*size, len(items))
		end := min(start+size, len(items))
		data := items[start:end]
		if data == nil {
			data = []session.Session{}
		}
		c.JSON(http.StatusOK, gin.H{"data": data, "page": page, "page_size": size, "total": len(items)})
	}
}
