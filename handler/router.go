package handler

import (
	"context"

	"hrsecurity/config"
	"hrsecurity/middleware"
	"hrsecurity/model"
	"hrsecurity/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// EventLister reads a user's security events, newest first.
type EventLister interface {
	ListUserEvents(ctx context.Context, userID string, limit int64) ([]model.SecurityEvent, error)
}

// Engine bundles the services the HTTP surface talks to.
type Engine struct {
	Auth     *services.Authenticator
	Sessions *services.SessionManager
	Tokens   *services.JWTVerifier
	Events   EventLister // optional
	Logger   *zap.Logger
}

func SetupRouter(e *Engine, cfg config.HTTPConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestTracingMiddleware(e.Logger))
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.RequestSizeLimiter(cfg.MaxBodyBytes))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public routes (no authentication required)
	public := router.Group("/api")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", func(c *gin.Context) {
				LoginHandler(c, e)
			})
		}
	}

	// Protected routes (authentication required)
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(e.Tokens))
	protected.Use(middleware.ActivityMiddleware(e.Sessions))
	{
		protected.POST("/auth/logout", func(c *gin.Context) {
			LogoutHandler(c, e)
		})

		security := protected.Group("/security")
		{
			security.GET("/context", func(c *gin.Context) {
				GetSecurityContext(c, e)
			})
			security.GET("/health", func(c *gin.Context) {
				GetSessionHealth(c, e)
			})
			security.GET("/sessions", func(c *gin.Context) {
				GetActiveSessions(c, e)
			})
			security.GET("/events", func(c *gin.Context) {
				GetSecurityEvents(c, e)
			})
		}
	}

	return router
}
