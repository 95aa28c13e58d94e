package api

import (
	"net/http"

	"daybrief-backend/internal/auth/delivery"
	authUsecase "daybrief-backend/internal/auth/usecase"
	briefingDelivery "daybrief-backend/internal/briefing/delivery"
	connDelivery "daybrief-backend/internal/connection/delivery"
	securityDelivery "daybrief-backend/internal/security/delivery"
	syncDelivery "daybrief-backend/internal/sync/delivery"
	"daybrief-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	sseManager *sse.Manager,
	authHandler *delivery.AuthHandler,
	connHandler *connDelivery.ConnectionHandler,
	syncHandler *syncDelivery.SyncHandler,
	briefingHandler *briefingDelivery.BriefingHandler,
	vaultHandler *securityDelivery.VaultHandler,
) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// SSE endpoint
		api.GET("/events", delivery.AuthMiddleware(authUc), func(c *gin.Context) {
			userID := c.GetString("userID")
			sseManager.ServeHTTP(c, userID)
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
			auth.PUT("/me", delivery.AuthMiddleware(authUc), authHandler.UpdateMe)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUc))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Connection routes (protected)
		connections := api.Group("/connections")
		connections.Use(delivery.AuthMiddleware(authUc))
		{
			connections.GET("", connHandler.List)
			connections.POST("/google", connHandler.ConnectGoogle)
			connections.POST("/imap", connHandler.ConnectIMAP)
			connections.DELETE("/:provider", connHandler.Disconnect)
		}

		// Sync routes (protected)
		syncGroup := api.Group("/sync")
		syncGroup.Use(delivery.AuthMiddleware(authUc))
		{
			syncGroup.POST("", syncHandler.Trigger)
			syncGroup.GET("/jobs", syncHandler.ListJobs)
			syncGroup.GET("/providers", syncHandler.Providers)
		}

		// Search routes (protected)
		search := api.Group("/search")
		search.Use(delivery.AuthMiddleware(authUc))
		{
			search.GET("/semantic", syncHandler.Search)
		}

		// Briefing routes (protected)
		briefing := api.Group("/briefing")
		briefing.Use(delivery.AuthMiddleware(authUc))
		{
			briefing.GET("/today", briefingHandler.Today)
			briefing.POST("/regenerate", briefingHandler.Regenerate)
		}

		// Vault routes (protected)
		vault := api.Group("/vault")
		vault.Use(delivery.AuthMiddleware(authUc))
		{
			vault.POST("/reveal", vaultHandler.Reveal)
		}
	}
}
