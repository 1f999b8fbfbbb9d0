package handler

import (
	"hrsecurity/middleware"
	"hrsecurity/model"
	"hrsecurity/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LogoutHandler ends the caller's session and revokes the token it used.
func LogoutHandler(c *gin.Context, e *Engine) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	if sctx := e.Sessions.GetSecurityContext(); sctx != nil && sctx.UserID == userID {
		e.Sessions.Stop(c.Request.Context(), model.LogoutReasonLoggedOut)
	}

	if err := e.Tokens.Revoke(c.Request.Context(), c.GetString("token")); err != nil {
		utils.TrackError("auth", "revoke")
		middleware.LoggerFrom(c).Error("failed to revoke token", zap.String("user_id", userID), zap.Error(err))
		utils.InternalError(c, "Failed to logout")
		return
	}

	utils.Success(c, gin.H{
		"message": "Successfully logged out",
	})
}
