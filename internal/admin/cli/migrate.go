package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, open, func(ctx context.Context, b *Backend) error {
				if err := b.Repos.RunMigrations(ctx, b.DB); err != nil {
					return fmt.Errorf("migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
				return nil
			})
		},
	}
}
