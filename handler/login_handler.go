package handler

import (
	"errors"
	"time"

	"hrsecurity/middleware"
	"hrsecurity/model"
	"hrsecurity/services"
	"hrsecurity/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginHandler verifies the credentials, opens the process session and
// returns a bearer token for it.
func LoginHandler(c *gin.Context, e *Engine) {
	logger := middleware.LoggerFrom(c)

	var loginReq model.LoginRequest
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		utils.TrackError("auth", "invalid_request")
		utils.TrackAuthAttempt("failure", "validation")
		utils.BadRequest(c, "Invalid Request")
		return
	}

	identity, err := e.Auth.Authenticate(c.Request.Context(), loginReq)
	switch {
	case errors.Is(err, services.ErrTwoFactorRequired):
		utils.Success(c, gin.H{
			"requires_2fa": true,
			"message":      "2FA code required",
		})
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.Unauthorized(c, "Invalid username or password")
		return
	case errors.Is(err, services.ErrInvalidTwoFactor):
		utils.Unauthorized(c, "Invalid 2FA code")
		return
	case err != nil:
		logger.Error("login failed", zap.String("username", loginReq.Username), zap.Error(err))
		utils.InternalError(c, "Failed to sign in")
		return
	}

	token, expiresAt, err := e.Tokens.IssueToken(identity)
	if err != nil {
		utils.TrackError("auth", "token_generation")
		logger.Error("failed to issue token", zap.String("user_id", identity.UserID), zap.Error(err))
		utils.InternalError(c, "Failed to generate token")
		return
	}

	// supersede the running session before its token is revoked
	if e.Sessions.GetSecurityContext() != nil {
		e.Sessions.Stop(c.Request.Context(), model.LogoutReasonSuperseded)
	}
	if previous := e.Tokens.CurrentToken(); previous != "" {
		if err := e.Tokens.Revoke(c.Request.Context(), previous); err != nil {
			logger.Warn("failed to revoke superseded token", zap.Error(err))
		}
	}
	e.Tokens.SetCurrentToken(token)

	client := loginReq.Client
	client.IPAddress = c.ClientIP()
	if client.UserAgent == "" {
		client.UserAgent = c.Request.UserAgent()
	}

	sessionID, err := e.Sessions.Start(c.Request.Context(), identity, client, services.StartOptions{
		RememberDevice: loginReq.RememberDevice,
		Credential:     token,
	})
	if err != nil {
		utils.TrackError("session", "start")
		logger.Error("failed to start session", zap.String("user_id", identity.UserID), zap.Error(err))
		utils.InternalError(c, "Failed to start session")
		return
	}

	response := gin.H{
		"message":    "Login successful",
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
		"session_id": sessionID,
		"user": gin.H{
			"id":       identity.UserID,
			"username": identity.Username,
			"email":    identity.Email,
			"role":     identity.Role,
		},
	}
	if sctx := e.Sessions.GetSecurityContext(); sctx != nil {
		response["risk_level"] = sctx.RiskLevel
		response["security_flags"] = sctx.SecurityFlags
		response["trusted_device"] = sctx.IsTrustedDevice
	}

	utils.Success(c, response)
}
