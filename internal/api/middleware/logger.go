package middleware

import (
	"time"

	"github.com/RecoveryAshes/DeepStack/internal/utils"
	"github.com/gin-gonic/gin"
)

// RequestLogger 用全局zerolog记录请求, 5xx记为错误
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start).Round(time.Microsecond)
		switch {
		case status >= 500:
			utils.Errorf("%s %s -> %d (%s) %s", c.Request.Method, c.Request.URL.Path, status, latency, c.ClientIP())
		case status >= 400:
			utils.Warnf("%s %s -> %d (%s) %s", c.Request.Method, c.Request.URL.Path, status, latency, c.ClientIP())
		default:
			utils.Debugf("%s %s -> %d (%s) %s", c.Request.Method, c.Request.URL.Path, status, latency, c.ClientIP())
		}
	}
}
