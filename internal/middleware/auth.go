package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/academic-helper/internal/auth"
	"github.com/developer-mesh/academic-helper/internal/observability"
)

// RequireIdentity rejects requests without a valid identity token and
// stores the caller's Identity in the context.
func RequireIdentity(authenticator auth.Authenticator, logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authenticator.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "missing authorization header"
			}
			logger.Debug("Authentication failed", map[string]interface{}{
				"request_id": GetRequestID(c),
				"error":      err.Error(),
			})
			c.Header("WWW-Authenticate", `Bearer realm="academic-helper"`)
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the caller set by RequireIdentity
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}
