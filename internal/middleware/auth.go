package middleware

import (
	"net/http"

	"license-api/internal/config"
	"license-api/internal/response"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware guards admin routes with the shared admin token.
// Fine-grained roles and permissions are the admin panel's concern,
// not this service's.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AppConfig.AdminToken == "" {
			c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "Admin token not configured"))
			c.Abort()
			return
		}

		token := c.GetHeader("X-Admin-Token")
		if token == "" {
			token = c.Query("admin_token")
		}

		if token != config.AppConfig.AdminToken {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid admin token"))
			c.Abort()
			return
		}

		c.Next()
	}
}
