// README: Firebase ID-token auth middleware; a nil verifier disables auth.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shopd/internal/infra"
)

const (
	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

// Auth verifies "Authorization: Bearer <id token>" and stores the caller's
// uid and role claim on the context. With a nil verifier every request passes
// unauthenticated.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			// browsers cannot set headers on websocket upgrades
			raw = c.Query("access_token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		c.Next()
	}
}

// RequireRole rejects authenticated callers without role. Unauthenticated
// requests only reach it when auth is disabled and pass through.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerUID(c) == "" {
			c.Next()
			return
		}
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: " + role + " role required"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// Authenticated reports whether Auth verified a caller for this request.
func Authenticated(c *gin.Context) bool {
	_, ok := c.Get(ctxUID)
	return ok
}
