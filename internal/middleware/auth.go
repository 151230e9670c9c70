// Package middleware provides Gin HTTP middleware for authentication and
// operation-context propagation.
//
// Auth runs first and resolves the bearer token into an identity; the
// operation context is then derived from that identity plus the request's
// network origin, so every handler downstream reads one consistent
// who/where/which-tenant triple.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bastionhq/bastion-audit/internal/audit"
	"github.com/bastionhq/bastion-audit/internal/auth"
)

// opContextKey is the gin context key holding the resolved OperationContext.
const opContextKey = "operation_context"

// AuthMiddleware validates the bearer token and stores the resolved
// OperationContext on the request.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		actor := &audit.Actor{
			ID:            claims.UserID,
			Name:          claims.Username,
			Authenticated: true,
		}
		c.Set("user_id", claims.UserID)
		c.Set(opContextKey, audit.ContextFromRequest(c.Request, actor, claims.OrgID))

		c.Next()
	}
}

// OperationContext returns the request's resolved OperationContext. Requests
// that bypassed auth get an anonymous context carrying only the client IP.
func OperationContext(c *gin.Context) audit.OperationContext {
	if v, ok := c.Get(opContextKey); ok {
		if op, ok := v.(audit.OperationContext); ok {
			return op
		}
	}
	return audit.ContextFromRequest(c.Request, nil, "")
}
