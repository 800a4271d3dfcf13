package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const allowHeaders = "Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Extensions, Sec-WebSocket-Protocol"

// CORS 跨域中间件
// 不符合来源策略的请求直接返回 403，包括预检请求
func CORS(policy *OriginPolicy) gin.HandlerFunc {
	if policy == nil {
		policy = NewOriginPolicy(nil)
	}

	return func(c *gin.Context) {
		if !policy.Allowed(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden_origin"})
			return
		}

		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "3600")
			h.Add("Vary", "Origin")
		}

		// OPTIONS 预检请求
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
