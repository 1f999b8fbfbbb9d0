package middleware

import (
	"net/http"

	"hrsecurity/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 and logs it with the
// request id.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				LoggerFrom(c).Error("handler panicked",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				utils.TrackError("http", "panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, &utils.Response{
					Status: http.StatusInternalServerError,
					Error:  "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
