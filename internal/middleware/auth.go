package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/pkg/response"
)

// ContextPrincipal is the key for the resolved principal in gin context.
const ContextPrincipal = "principal"

// Auth validates the bearer token from the external identity provider
// and resolves the principal into the request context. Requests with a
// missing or invalid token are rejected; resolution itself never fails,
// but a claim set without a usable subject resolves to no identity,
// which every policy predicate denies.
func Auth(tokens *identity.TokenService) gin.HandlerFunc {
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
		claims, err := tokens.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		p := identity.Resolve(claims)
		if !p.Valid() {
			response.Unauthorized(c, "token has no subject")
			c.Abort()
			return
		}
		c.Set(ContextPrincipal, p)
		c.Next()
	}
}

// Principal returns the resolved principal from gin context, or None.
func Principal(c *gin.Context) identity.Principal {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return identity.None
	}
	p, _ := v.(identity.Principal)
	return p
}
