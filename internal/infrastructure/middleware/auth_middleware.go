package middleware

import (
	"net/http"
	"strings"

	"telemeet/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the Bearer credential through the identity
// collaborator and stores the identity on the request context.
func AuthMiddleware(identity ports.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		resolved, err := identity.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", resolved.UserID)
		c.Set("user_name", resolved.Name)
		c.Set("user_role", resolved.Role)
		c.Next()
	}
}
