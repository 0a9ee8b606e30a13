package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// Middleware builds a Session from the Authorization header and rejects the
// request when there is none.
func Middleware(now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// Browsers cannot set headers on websocket upgrades.
			authHeader = bearerFromQuery(c)
		}
		if authHeader == "" {
			abort(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, "invalid authorization header format")
			return
		}

		session, err := NewSession(parts[1], now())
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "session expired"
			}
			abort(c, msg)
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

func bearerFromQuery(c *gin.Context) string {
	if token := c.Query("access_token"); token != "" {
		return "Bearer " + token
	}
	return ""
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		types.NewErrorResponse(types.CodeUnauthenticated, msg, nil))
}

// FromContext returns the session stored by Middleware.
func FromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}
