package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// RequestLogger Gin middleware для логирования запросов.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.Request.URL.Path
		rawQuery := c.Request.URL.RawQuery
		if rawQuery != "" {
			path = path + "?" + rawQuery
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		keyvals := []interface{}{
			"status_code", statusCode,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		switch {
		case statusCode >= 500:
			log.Errorw("Request handled", keyvals...)
		case statusCode >= 400:
			log.Warnw("Request handled", keyvals...)
		default:
			log.Infow("Request handled", keyvals...)
		}
	}
}
