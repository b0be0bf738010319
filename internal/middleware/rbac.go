package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

// RequireRoles restricts a route to the listed roles.
func RequireRoles(roles ...models.CallerRole) gin.HandlerFunc {
	allowed := make(map[models.CallerRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		caller, ok := Caller(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}
		if _, ok := allowed[caller.Role]; !ok {
			response.Error(c, appErrors.ErrInsufficientPrivilege)
			c.Abort()
			return
		}
		c.Next()
	}
}
