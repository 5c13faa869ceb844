// Package rest exposes the account API over HTTP using gin.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophaccounts/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	address  string
	accounts *services.AccountService
	limiter  ratelimit.Limiter
	db       Pinger
	logger   logging.Logger
	router   *gin.Engine
	timeout  time.Duration
}

// NewServer builds the router. limiter may be nil to disable throttling.
func NewServer(address string, accounts *services.AccountService, limiter ratelimit.Limiter, db Pinger, l logging.Logger) *Server {
	s := &Server{
		address:  address,
		accounts: accounts,
		limiter:  limiter,
		db:       db,
		logger:   l.With("module", "http_server"),
		router:   gin.New(),
		timeout:  10 * time.Second,
	}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())
	r.Use(s.tokenAuthMiddleware())

	r.GET("/healthz", s.health)

	a := r.Group("/accounts")
	s.route(a, "/registration/", open, limited, methods{http.MethodPost: s.register})
	s.route(a, "/registration/verify-email/", open, unlimited, methods{http.MethodGet: s.verifyEmail, http.MethodPost: s.verifyEmail})
	s.route(a, "/login/", open, limited, methods{http.MethodPost: s.login})
	s.route(a, "/logout/", open, unlimited, methods{http.MethodPost: s.logout})
	s.route(a, "/password/change/", protected, unlimited, methods{http.MethodPost: s.changePassword})
	s.route(a, "/password/reset/", open, limited, methods{http.MethodPost: s.resetPassword})
	s.route(a, "/password/reset/confirm/", open, limited, methods{http.MethodPost: s.confirmReset})
	s.route(a, "/user/", protected, unlimited, methods{
		http.MethodGet:   s.userDetails,
		http.MethodPut:   s.replaceUserDetails,
		http.MethodPatch: s.patchUserDetails,
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.timeout)
}

type methods map[string]gin.HandlerFunc

type access bool

const (
	open      access = false
	protected access = true
)

type throttle bool

const (
	unlimited throttle = false
	limited   throttle = true
)

// route registers every method on path so unsupported methods get the API's
// own 405 body. Protected routes reject anonymous callers before the method
// is looked at.
func (s *Server) route(g *gin.RouterGroup, path string, acc access, thr throttle, m methods) {
	g.Any(path, func(c *gin.Context) {
		if acc == protected && currentUser(c) == nil {
			c.JSON(http.StatusForbidden, detail("Authentication credentials were not provided."))
			return
		}
		h, ok := m[c.Request.Method]
		if !ok {
			c.JSON(http.StatusMethodNotAllowed, detail(`Method "`+c.Request.Method+`" not allowed.`))
			return
		}
		if thr == limited && !s.allow(c) {
			c.JSON(http.StatusTooManyRequests, detail("Request was throttled."))
			return
		}
		h(c)
	})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error(ctx, "health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
