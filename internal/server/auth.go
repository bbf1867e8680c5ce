package server

import (
	"crypto/subtle"
	"github.com/gin-gonic/gin"
	"github.com/packagewjx/procmon/pkg/monitor"
	"net/http"
)

// APIKeyAuth 拒绝X-API-Key缺失或与secret不一致的请求。两种情况返回相同的401，且不读取请求体
func APIKeyAuth(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		if !validAPIKey(c.GetHeader(monitor.HeaderAPIKey), expected) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, monitor.ErrorResponse{Detail: "Unauthorized"})
			return
		}
		c.Next()
	}
}

func validAPIKey(supplied string, expected []byte) bool {
	if supplied == "" || len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), expected) == 1
}
