// Package server wires the accounts server together: database and
// migrations, the mail backend, the rate limiter, the account service and the
// HTTP and gRPC endpoints. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/identity"
	"github.com/dmitrijs2005/gophaccounts/internal/server/notify"
	"github.com/dmitrijs2005/gophaccounts/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaccounts/internal/server/rest"
	"github.com/dmitrijs2005/gophaccounts/internal/server/services"

	gs "github.com/dmitrijs2005/gophaccounts/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	limiter ratelimit.Limiter
	closers []func() error
	http    *rest.Server
	grpc    *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, os.Stdout)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db, closers: []func() error{db.Close}}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	mailer, err := newMailer(ctx, c, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	limiter, closeLimiter, err := newLimiter(ctx, c)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.limiter = limiter
	if closeLimiter != nil {
		app.closers = append(app.closers, closeLimiter)
	}

	notifier := notify.NewEmailNotifier(mailer, c, logger)
	reconciler := identity.NewReconciler(notifier, logger)
	accounts := services.NewAccountService(db, rm, reconciler, notifier, c, logger)

	app.http = rest.NewServer(c.EndpointAddrHTTP, accounts, limiter, db, logger)
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db)

	return app, nil
}

func newMailer(ctx context.Context, c *config.Config, l logging.Logger) (notify.Mailer, error) {
	if c.MailBackend == config.MailBackendS3 {
		m, err := notify.NewS3Mailer(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("s3 mailer: %w", err)
		}
		return m, nil
	}
	return notify.NewLogMailer(l), nil
}

// newLimiter returns the shared Redis limiter when configured and a
// per-process one otherwise. A zero rate disables throttling.
func newLimiter(ctx context.Context, c *config.Config) (ratelimit.Limiter, func() error, error) {
	if c.LoginRateLimit <= 0 {
		return nil, nil, nil
	}
	if c.RedisDSN == "" {
		return ratelimit.NewMemoryLimiter(c.LoginRateLimit), nil, nil
	}
	l, closeFn, err := ratelimit.NewRedisLimiter(ctx, c.RedisDSN, c.LoginRateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l, closeFn, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.grpc.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "shutdown", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

// Close releases the database pool and the limiter connection.
func (app *App) Close() error {
	var first error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	app.closers = nil
	return first
}
