package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
)

const identityKey = "identity"

// Authenticator resolves bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Bearer enforces an Authorization: Bearer token and stores the identity.
func Bearer(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, apperr.With(apperr.ErrUnauthorized, "token is missing"))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		id, err := a.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			abort(c, apperr.From(err))
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole rejects identities of any other role with 403.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			abort(c, apperr.With(apperr.ErrUnauthorized, "token is missing"))
			return
		}
		if id.Role != role {
			abort(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Bearer.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func abort(c *gin.Context, err *apperr.Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": err.Message, "code": err.Code})
}
