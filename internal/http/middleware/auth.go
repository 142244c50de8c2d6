// README: Bearer token auth middleware; resolves the caller into a types.Actor.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"petmarket/internal/infra"
	"petmarket/internal/types"
)

const (
	ctxCallerUID      = "caller_uid"
	ctxCallerRole     = "caller_role"
	ctxCallerProvider = "caller_provider"
)

// Auth verifies the Authorization header with verifier. The role claim maps
// through types.ParseRole; provider_id binds provider and staff callers to
// their shop.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role, _ := token.Claims["role"].(string)
		provider, _ := token.Claims["provider_id"].(string)
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerRole, types.ParseRole(role))
		c.Set(ctxCallerProvider, provider)
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

func CallerRole(c *gin.Context) types.Role {
	v, ok := c.Get(ctxCallerRole)
	if !ok {
		return ""
	}
	role, _ := v.(types.Role)
	return role
}

// CallerActor is the authenticated principal passed to module services.
func CallerActor(c *gin.Context) types.Actor {
	return types.Actor{
		ID:         types.ID(CallerUID(c)),
		Role:       CallerRole(c),
		ProviderID: types.ID(c.GetString(ctxCallerProvider)),
	}
}
