package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"aichat-backend/internal/session"
	"aichat-backend/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// Auth gates a route group behind a session resolver. Requests without a
// resolvable, unexpired session are rejected before any handler runs.
func Auth(resolver session.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := resolver.Resolve(c.Request)
		if err != nil {
			response.Error(c, 500, response.CodeInternalServer, "resolve session failed")
			c.Abort()
			return
		}
		if sess == nil {
			response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
			response.Error(c, 401, response.CodeUnauthorized, "session expired")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, sess.UserID)
		c.Set(ContextUsernameKey, sess.Username)
		c.Next()
	}
}
