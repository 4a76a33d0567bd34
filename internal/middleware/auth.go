package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/keygate-io/keygate/internal/auth"
	"github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxClientIDKey = "clientID"
)

// Auth enforces bearer token authentication on the management surface using
// the supplied JWT service. When scope is non-empty the token must also grant
// that scope.
func Auth(jwt *iauth.JWTService, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if scope != "" && !claims.HasScope(scope) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxClientIDKey, claims.ClientID)

		c.Next()
	}
}
