package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"icepeak/internal/log"
	"icepeak/internal/metrics"
)

// Logger is a Gin middleware that logs every request with method, path,
// status code, and latency, and records request-count/duration metrics.
func Logger() gin.HandlerFunc {
	logger := log.WithComponent("api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("request")

		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method).Observe(elapsed.Seconds())
	}
}

// Recovery is a Gin middleware that recovers panics in handlers, logs them
// in a structured way, and responds 500.
func Recovery() gin.HandlerFunc {
	logger := log.WithComponent("api")
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().Interface("panic", err).Msg("recovered panic in handler")
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
