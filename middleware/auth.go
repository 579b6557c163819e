package middleware

import (
	"context"
	"net/http"
	"strings"

	"rental-backend/access"
	"rental-backend/models"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Authenticator resolves a bearer token into its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

func BearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	for _, scheme := range []string{"Bearer ", "Token "} {
		if len(h) > len(scheme) && strings.EqualFold(h[:len(scheme)], scheme) {
			return strings.TrimSpace(h[len(scheme):])
		}
	}
	return ""
}

// Auth attaches the request principal. Requests without a token stay
// anonymous; an unknown or expired token is rejected with 401.
func Auth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Set(principalKey, access.Anonymous)
			c.Next()
			return
		}
		u, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			utils.JSONError(c, http.StatusUnauthorized, "error.unauthenticated", "Invalid or expired token", nil)
			return
		}
		c.Set(principalKey, access.FromUser(*u))
		c.Next()
	}
}

// PrincipalFrom returns the principal set by Auth, or Anonymous.
func PrincipalFrom(c *gin.Context) access.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(access.Principal); ok {
			return p
		}
	}
	return access.Anonymous
}

// Require aborts unless every guard accepts the principal: 401 when the
// request is not authenticated, 403 otherwise.
func Require(guards ...access.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := access.Check(PrincipalFrom(c), guards...)
		if d == nil {
			c.Next()
			return
		}
		status := http.StatusForbidden
		if d.Unauthenticated {
			status = http.StatusUnauthorized
		}
		utils.JSONError(c, status, d.Code, d.Message, d.Details)
	}
}
