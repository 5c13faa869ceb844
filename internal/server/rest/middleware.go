package rest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	userKey  = "accounts.user"
	tokenKey = "accounts.token"
)

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info(c.Request.Context(), "http_request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// tokenAuthMiddleware resolves "Authorization: Token <key>". Requests with
// another scheme or no header pass through anonymously; a malformed or
// unknown token is rejected.
func (s *Server) tokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader(common.AuthorizationHeaderName))
		if len(parts) == 0 || !strings.EqualFold(parts[0], common.AuthorizationScheme) {
			c.Next()
			return
		}

		switch len(parts) {
		case 1:
			unauthorized(c, "Invalid token header. No credentials provided.")
			return
		case 2:
		default:
			unauthorized(c, "Invalid token header. Token string should not contain spaces.")
			return
		}

		ctx, cancel := s.ctx(c)
		defer cancel()

		user, err := s.accounts.Authenticate(ctx, parts[1])
		if err != nil {
			if errors.Is(err, common.ErrInvalidToken) {
				unauthorized(c, "Invalid token.")
				return
			}
			s.serverError(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Set(tokenKey, parts[1])
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", common.AuthorizationScheme)
	c.AbortWithStatusJSON(http.StatusUnauthorized, detail(msg))
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func currentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// allow consults the limiter for the client address. Limiter failures let
// the request through.
func (s *Server) allow(c *gin.Context) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		s.logger.Warn(c.Request.Context(), "rate_limit_error", "error", err)
		return true
	}
	return ok
}
