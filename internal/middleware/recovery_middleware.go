// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"tourism-portal/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500. It runs outside
// LoggingMiddleware, so the request log line is never written for a panic
// and this entry carries the request ID instead.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			}
			if id := GetRequestID(c); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if id, ok := GetIdentityID(c); ok {
				fields = append(fields, zap.Int64("identity_id", id))
			}
			logger.Error("panic recovered", fields...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}()
		c.Next()
	}
}
