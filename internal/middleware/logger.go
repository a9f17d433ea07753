package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one logrus line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"latency": time.Since(start).Truncate(time.Millisecond).String(),
			"ip":      c.ClientIP(),
		})
		if name := AdminName(c); name != "" {
			entry = entry.WithField("admin", name)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Error("[http] request")
		case status >= 400:
			entry.Warn("[http] request")
		default:
			entry.Info("[http] request")
		}
	}
}
