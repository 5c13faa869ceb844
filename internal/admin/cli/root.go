// Package cli implements accountsctl, the administration command line for
// the accounts database.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/identity"
	"github.com/dmitrijs2005/gophaccounts/internal/server/notify"
	"github.com/dmitrijs2005/gophaccounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaccounts/internal/server/services"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	DSN        string
	LogLevel   string
}

// Backend is everything a command may touch.
type Backend struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Accounts *services.AccountService
	Close    func() error
}

// Opener connects a Backend for cfg.
type Opener func(ctx context.Context, cfg *config.Config, l logging.Logger) (*Backend, error)

// PostgresOpener is the production Opener.
func PostgresOpener(ctx context.Context, cfg *config.Config, l logging.Logger) (*Backend, error) {
	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	rm := repomanager.NewPostgresRepositoryManager()
	notifier := notify.NewEmailNotifier(notify.NewLogMailer(l), cfg, l)
	accounts := services.NewAccountService(db, rm, identity.NewReconciler(notifier, l), notifier, cfg, l)
	return &Backend{DB: db, Repos: rm, Accounts: accounts, Close: db.Close}, nil
}

// NewRootCommand creates the accountsctl root command.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "accountsctl",
		Short:         "Administer the accounts database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "server config file (json or yaml)")
	cmd.PersistentFlags().StringVarP(&opts.DSN, "dsn", "d", "", "database DSN, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level")

	cmd.AddCommand(NewMigrateCommand(opts, open))
	cmd.AddCommand(NewCreateSuperuserCommand(opts, open))
	cmd.AddCommand(NewUsersCommand(opts, open))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if o.ConfigFile != "" {
		if err := config.LoadFile(cfg, o.ConfigFile); err != nil {
			return nil, err
		}
	}
	if o.DSN != "" {
		cfg.DatabaseDSN = o.DSN
	}
	return cfg, nil
}

// withBackend loads configuration, opens the backend and runs fn.
func withBackend(cmd *cobra.Command, opts *RootOptions, open Opener, fn func(ctx context.Context, b *Backend) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(opts.LogLevel, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	return fn(ctx, b)
}

// Execute runs the root command and reports errors on stderr.
func Execute(open Opener) int {
	cmd := NewRootCommand(open)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
