package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codejudge/internal/auth"
)

const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity on the context.
func RequireAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := svc.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// OptionalAuth stores identity when a valid token is present but lets
// anonymous requests through.
func OptionalAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := svc.VerifyToken(token); err == nil {
				c.Set(ctxUserID, claims.UserID)
				c.Set(ctxUsername, claims.Username)
			}
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user's id, if any.
func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetUsername returns the authenticated username, if any.
func GetUsername(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUsername)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
