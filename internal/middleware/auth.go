package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/pkg/apikey"
	"github.com/ragline/ragline/internal/pkg/errcode"
	"github.com/ragline/ragline/internal/pkg/jwt"
	"github.com/ragline/ragline/internal/pkg/response"
)

const (
	ContextServiceKey = "service"
	apiKeyHeader      = "X-Api-Key"
	apiKeyService     = "api-key"
)

// Auth accepts either a service JWT (Bearer) or a pre-shared API key. API
// keys carry full access; tokens must hold the required scope.
func Auth(secret []byte, hashedKeys []string, requiredScope string) gin.HandlerFunc {
	return authHandler(secret, hashedKeys, requiredScope, true)
}

// AuthOptional verifies credentials when supplied but lets anonymous
// requests through untouched.
func AuthOptional(secret []byte, hashedKeys []string) gin.HandlerFunc {
	return authHandler(secret, hashedKeys, "", false)
}

func authHandler(secret []byte, hashedKeys []string, requiredScope string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(apiKeyHeader)
		header := c.GetHeader("Authorization")
		if key == "" && header == "" {
			if !required {
				c.Next()
				return
			}
			response.Error(c, errcode.ErrUnauthorized, "missing credentials")
			c.Abort()
			return
		}
		if key != "" {
			for _, hash := range hashedKeys {
				if apikey.Verify(hash, key) == nil {
					c.Set(ContextServiceKey, apiKeyService)
					c.Next()
					return
				}
			}
			response.Error(c, errcode.ErrUnauthorized, "invalid api key")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		if !scopeAllows(claims.Scope, requiredScope) {
			response.Error(c, errcode.ErrForbidden, "insufficient scope")
			c.Abort()
			return
		}
		c.Set(ContextServiceKey, claims.Service)
		c.Next()
	}
}

// ingest is the wider scope; a token holding it may also query.
func scopeAllows(have, want string) bool {
	return want == "" || have == want || have == jwt.ScopeIngest
}
