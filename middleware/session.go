package middleware

import (
	"hrsecurity/model"

	"github.com/gin-gonic/gin"
)

// ActivityTracker is the part of services.SessionManager that observes user
// interaction.
type ActivityTracker interface {
	TouchActivity()
	GetSecurityContext() *model.SecurityContext
}

// ActivityMiddleware counts every authenticated request as interaction with
// the running session, provided the caller owns it. Run it after
// AuthMiddleware.
func ActivityMiddleware(tracker ActivityTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID != "" {
			if sctx := tracker.GetSecurityContext(); sctx != nil && sctx.UserID == userID {
				tracker.TouchActivity()
				c.Set("session_id", sctx.SessionID)
			}
		}
		c.Next()
	}
}
