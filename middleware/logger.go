package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"vibeconnect/errs"
	"vibeconnect/metrics"
)

// RequestLogger logs each request on zap and records the HTTP metrics.
// Errors attached by utils.Fail are logged with the request; internal ones at error level.
func RequestLogger(logger *zap.Logger, m *metrics.Collector) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if m != nil {
			m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := GetUserID(c); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.Error(err.Err))
			if errs.KindOf(err.Err) == errs.KindInternal {
				logger.Error("request failed", fields...)
				return
			}
			logger.Info("request rejected", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
