package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/concessions-app/utils"
)

// LoggerMiddleware records method, path, status and latency for every request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		if status >= 500 {
			utils.ErrorLogger.Printf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
			return
		}
		utils.InfoLogger.Printf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
	}
}
