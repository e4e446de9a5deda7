package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PaulFidika/accesskit/access"
	"github.com/PaulFidika/accesskit/adapters/ginutil"
)

type accessCheckReq struct {
	Product string `json:"product"`
}

func HandleAccessCheckPOST(ent EntitlementChecker, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAccessCheck) {
			ginutil.TooMany(c)
			return
		}
		var req accessCheckReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Product) == "" {
			ginutil.BadRequest(c, "missing_product")
			return
		}
		d, err := ent.Entitled(c.Request.Context(), ginutil.UserID(c), strings.TrimSpace(req.Product))
		var denial *access.Denial
		if errors.As(err, &denial) {
			ginutil.Deny(c, denial.HTTPStatus(), string(denial.Kind), denial.Reason, denial.RetryAfterSeconds)
			return
		}
		if err != nil {
			ginutil.ServerErr(c, "failed_to_resolve")
			return
		}
		c.JSON(http.StatusOK, gin.H{"allowed": d.Allowed, "reason": d.Reason})
	}
}
