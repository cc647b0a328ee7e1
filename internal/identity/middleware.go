package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxPrincipal is the gin context key the middleware stores the
// authenticated principal under.
const ctxPrincipal = "credanchor_principal"

// Require returns a Gin middleware that enforces a valid Bearer token.
// When roles are given, the principal's role must be among them; an
// authenticated caller with the wrong role gets 403, not 401.
func Require(verifier Verifier, roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		principal, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		if len(allowed) > 0 && !allowed[principal.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
			})
			return
		}

		c.Set(ctxPrincipal, principal)
		c.Next()
	}
}

// FromCtx returns the principal stored by Require, or nil.
func FromCtx(c *gin.Context) *Principal {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
