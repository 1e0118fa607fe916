package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acadlive/backend/internal/auth"
	"github.com/acadlive/backend/internal/models"
	"github.com/acadlive/backend/pkg/response"
)

// ContextCaller is the gin context key for the authenticated caller.
const ContextCaller = "caller"

// JWT returns a middleware that validates the platform JWT and places the
// caller identity in the gin context. Requests without a valid identity are
// rejected before any other check runs.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextCaller, models.Caller{
			ID:    claims.UserID,
			Name:  claims.Name,
			Email: claims.Email,
			Role:  claims.Role,
		})
		c.Next()
	}
}

// Caller returns the authenticated caller set by the JWT middleware.
func Caller(c *gin.Context) models.Caller {
	return c.MustGet(ContextCaller).(models.Caller)
}
