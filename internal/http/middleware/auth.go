// README: Firebase auth middleware; admin gate via injected role predicate.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bookferry/internal/infra"
	"bookferry/internal/modules/user"
	"bookferry/internal/types"
)

const (
	ctxKeyUID  = "auth.uid"
	ctxKeyRole = "auth.role"
)

// Registrar upserts the authenticated user so entity writes can reference it.
type Registrar interface {
	Upsert(ctx context.Context, u *user.User) error
}

// RoleChecker answers whether a user holds a role. The admin surface is
// gated on this predicate, not on any hardcoded identity.
type RoleChecker func(ctx context.Context, id types.ID, role user.Role) (bool, error)

// Auth verifies the bearer token and stores caller identity on the context.
func Auth(verifier infra.TokenVerifier, registrar Registrar) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxKeyUID, token.UID)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxKeyRole, role)
		}

		if registrar != nil {
			name, _ := token.Claims["name"].(string)
			u := &user.User{ID: types.ID(token.UID), DisplayName: name, Role: user.RoleUser}
			if err := registrar.Upsert(c.Request.Context(), u); err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
				return
			}
		}
		c.Next()
	}
}

// RequireRole admits only callers for whom the predicate grants the role.
func RequireRole(role user.Role, hasRole RoleChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := CallerUID(c)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		ok, err := hasRole(c.Request.Context(), types.ID(uid), role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CallerUID returns the authenticated caller's UID, or "" if unauthenticated.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

// CallerRole returns the role claim carried by the token, if any.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}
