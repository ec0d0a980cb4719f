// Package middleware provides HTTP middleware components.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// MovementIDKey is set by handlers once a request names a movement, so a
// panic while posting can be traced back to it.
const MovementIDKey = "movement_id"

// Recovery turns a panic into a 500 response. The log entry carries the
// request context and stack trace; the client only gets the request ID.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("http")
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := []any{
				"error", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			}
			if movementID := c.GetString(MovementIDKey); movementID != "" {
				fields = append(fields, "movement_id", movementID)
			}
			log.WithContext(c.Request.Context()).Errorw("panic recovered", fields...)

			// Inner middleware is unwound by the panic, so the response is written here.
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": c.GetString("request_id"),
				},
			})
		}()
		c.Next()
	}
}
