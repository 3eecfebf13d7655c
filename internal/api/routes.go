package api

import (
	"license-api/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine) {
	// API route group
	api := r.Group("/api")
	{
		// Client routes (device-facing, no authentication)
		client := api.Group("/client")
		{
			client.POST("/activate", ActivateDevice)
			client.GET("/public-key", GetCurrentPublicKey)
			client.GET("/public-key/:keyId", GetPublicKey)
			client.GET("/cloud-config/:productId", GetCloudConfig)
		}

		// Payment provider webhook (no authentication, Afdian calls this)
		webhook := api.Group("/webhook")
		{
			webhook.POST("/afdian", AfdianWebhook)
		}

		// Admin routes (shared admin token)
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.POST("/sync-orders", SyncOrders)
			admin.GET("/provider/verify", VerifyProviderCredentials)

			admin.GET("/licenses", GetLicenses)
			admin.POST("/licenses", CreateLicense)
			admin.POST("/licenses/batch-extend", BatchExtendLicenses)
			admin.GET("/licenses/:id", GetLicense)
			admin.PUT("/licenses/:id", UpdateLicense)
			admin.POST("/licenses/:id/revoke", RevokeLicense)
			admin.DELETE("/licenses/:id", DeleteLicense)

			admin.POST("/users/:id/balance", AdjustBalance)

			admin.GET("/keys", GetKeys)
			admin.POST("/keys/rotate", RotateKey)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "license-service",
		})
	})
}
