package ginutil

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func NotFound(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": code})
}

func ServerErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}

func Forbidden(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "reason": reason})
}

// Deny writes an access denial with its own status and error kind.
func Deny(c *gin.Context, status int, kind, reason string, retryAfter int) {
	body := gin.H{"error": kind, "reason": reason}
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		body["retry_after_seconds"] = retryAfter
	}
	c.AbortWithStatusJSON(status, body)
}
