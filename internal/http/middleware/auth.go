// README: Bearer-token authentication; stores the caller's uid and role on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fuelhaul/internal/infra"
	"fuelhaul/internal/policy"
	"fuelhaul/internal/types"
)

const (
	ctxUID  = "caller_uid"
	ctxRole = "caller_role"
)

// Auth verifies the bearer token with verifier. The role comes from the
// token's "role" claim; tokens without one act as customers.
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
		role := policy.RoleCustomer
		if v, _ := token.Claims["role"].(string); v != "" {
			r, ok := policy.ParseRole(v)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown role"})
				return
			}
			role = r
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) policy.Role {
	v, _ := c.Get(ctxRole)
	r, _ := v.(policy.Role)
	return r
}

// Actor is the authenticated caller as seen by the services.
func Actor(c *gin.Context) policy.Actor {
	return policy.Actor{ID: types.ID(CallerUID(c)), Role: CallerRole(c)}
}
