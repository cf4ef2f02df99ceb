// app/seenmw.go
package app

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RequestLogger writes one slog line per request. Health probes are noisy,
// so with redis they are logged at most once per client per throttle window,
// without redis only at debug level.
func RequestLogger(logger *slog.Logger, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"ip", c.ClientIP(),
			"took", time.Since(start),
		}

		if path == "/healthz" || path == "/health" {
			if rdb == nil {
				logger.Debug("http", attrs...)
				return
			}
			key := "http:probe:" + c.ClientIP()
			if ok, _ := rdb.SetNX(c.Request.Context(), key, "1", throttle).Result(); !ok {
				return
			}
		}

		switch {
		case status >= 500:
			logger.Error("http", append(attrs, "error", c.Errors.String())...)
		case status >= 400:
			logger.Warn("http", attrs...)
		default:
			logger.Info("http", attrs...)
		}
	}
}
