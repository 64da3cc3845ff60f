package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/store"
)

const contextUserKey = "orc.user"

// requireAuth resolves the bearer token and stores the user on the
// request context. Requests without a valid token stop here with 401.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			renderError(c, apierr.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}
		user, err := s.core.ResolveToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			renderError(c, err)
			c.Abort()
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// currentUser fetches the authenticated user placed by requireAuth.
func currentUser(c *gin.Context) store.User {
	u, _ := c.Get(contextUserKey)
	user, _ := u.(store.User)
	return user
}
