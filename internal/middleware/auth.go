// Package middleware provides gin middleware for the fleetward HTTP surface.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/token"
)

// AuthStatusKey is the gin context key the resolved models.AuthStatus is stored under.
const AuthStatusKey = "authStatus"

// RequireAuth extracts a session token from the Authorization header (or a "token" query
// parameter fallback) and attaches the resolved AuthStatus to the request context, refusing
// the request with 401 when the token is missing, malformed, or expired. It does not renew
// an expired master token itself — that is CallMaster's job (§4.3), gated on Matured() so an
// expired-but-unmatured token surfaces as an internal error instead of being silently renewed.
func RequireAuth(coord *token.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := extractToken(c)
		if tok == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		status, err := coord.Validate(c.Request.Context(), tok)
		if err != nil {
			writeError(c, err)
			return
		}
		if status == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(AuthStatusKey, status)
		c.Next()
	}
}

// MustAuthStatus fetches the AuthStatus a prior RequireAuth call attached to c. Panics if
// called from a route not guarded by RequireAuth, which is a programming error.
func MustAuthStatus(c *gin.Context) *models.AuthStatus {
	return c.MustGet(AuthStatusKey).(*models.AuthStatus)
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

func writeError(c *gin.Context, err error) {
	apiErr := models.AsAPIError(err)
	c.AbortWithStatusJSON(apiErr.Kind.HTTPStatus(), gin.H{"error": apiErr.Message})
}
