package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"hrsecurity/model"
	"hrsecurity/services"
	"hrsecurity/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenVerifier is the part of services.JWTVerifier the auth middleware needs.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*model.Identity, *services.CredentialClaims, error)
}

// AuthMiddleware requires a valid, unrevoked bearer token and stores the
// caller's identity in the gin context.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.TrackAuthAttempt("failure", "missing_token")
			utils.AbortUnauthorized(c, "Missing or invalid token", "TOKEN_MISSING")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		identity, claims, err := verifier.Verify(c.Request.Context(), tokenString)
		if errors.Is(err, services.ErrCredentialInvalid) {
			utils.TrackAuthAttempt("failure", "invalid_token")
			utils.AbortUnauthorized(c, "Invalid token", "TOKEN_INVALID")
			return
		}
		if err != nil {
			utils.TrackError("auth", "token_verification")
			LoggerFrom(c).Warn("token verification unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, &utils.Response{
				Status: http.StatusServiceUnavailable,
				Error:  "Token verification unavailable",
				Code:   "AUTH_UNAVAILABLE",
			})
			return
		}

		c.Set("user_id", identity.UserID)
		c.Set("identity", identity)
		c.Set("token", tokenString)
		c.Set("token_id", claims.ID)
		if claims.IssuedAt != nil {
			c.Set("token_issued_at", claims.IssuedAt.Time)
		}

		c.Next()
	}
}
