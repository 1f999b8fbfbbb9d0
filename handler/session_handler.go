package handler

import (
	"strconv"

	"hrsecurity/middleware"
	"hrsecurity/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// GetSecurityContext returns the running session's context when it belongs
// to the caller.
func GetSecurityContext(c *gin.Context, e *Engine) {
	sctx := e.Sessions.GetSecurityContext()
	if sctx == nil || sctx.UserID != c.GetString("user_id") {
		utils.NotFound(c, "No active session")
		return
	}
	utils.Success(c, gin.H{"context": sctx})
}

// GetSessionHealth re-checks the credential behind the running session.
func GetSessionHealth(c *gin.Context, e *Engine) {
	sctx := e.Sessions.GetSecurityContext()
	if sctx == nil || sctx.UserID != c.GetString("user_id") {
		utils.NotFound(c, "No active session")
		return
	}
	utils.Success(c, gin.H{
		"health":     e.Sessions.CurrentHealth(c.Request.Context()),
		"session_id": sctx.SessionID,
	})
}

func GetActiveSessions(c *gin.Context, e *Engine) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	sessions, err := e.Sessions.ActiveSessions(c.Request.Context(), userID)
	if err != nil {
		middleware.LoggerFrom(c).Error("failed to list sessions", zap.String("user_id", userID), zap.Error(err))
		utils.InternalError(c, "Failed to fetch sessions")
		return
	}

	utils.Success(c, gin.H{
		"sessions": sessions,
	})
}

// GetSecurityEvents lists the caller's audit trail, newest first.
func GetSecurityEvents(c *gin.Context, e *Engine) {
	if e.Events == nil {
		utils.NotFound(c, "Security events are not available")
		return
	}
	userID := c.GetString("user_id")

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := e.Events.ListUserEvents(c.Request.Context(), userID, int64(limit))
	if err != nil {
		middleware.LoggerFrom(c).Error("failed to list security events", zap.String("user_id", userID), zap.Error(err))
		utils.InternalError(c, "Failed to fetch security events")
		return
	}

	utils.Success(c, gin.H{
		"events": events,
	})
}
