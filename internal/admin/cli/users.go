package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/spf13/cobra"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func NewUsersCommand(opts *RootOptions, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect accounts",
	}
	cmd.AddCommand(newUsersListCommand(opts, open))
	return cmd
}

func newUsersListCommand(opts *RootOptions, open Opener) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(format) {
				return fmt.Errorf("invalid format %q: must be one of %v", format, ValidFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, open, func(ctx context.Context, b *Backend) error {
				list, err := b.Accounts.ListUsers(ctx)
				if err != nil {
					return err
				}
				if format == "json" {
					return writeUsersJSON(cmd.OutOrStdout(), list)
				}
				return writeUsersText(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

type userRow struct {
	ID          string     `json:"id"`
	UserName    string     `json:"username"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLogin   *time.Time `json:"last_login"`
	DateJoined  time.Time  `json:"date_joined"`
}

func writeUsersJSON(w io.Writer, list []*models.User) error {
	rows := make([]userRow, 0, len(list))
	for _, u := range list {
		rows = append(rows, userRow{
			ID:          u.ID,
			UserName:    u.UserName,
			Email:       u.Email,
			IsActive:    u.IsActive,
			IsStaff:     u.IsStaff,
			IsSuperuser: u.IsSuperuser,
			LastLogin:   u.LastLogin,
			DateJoined:  u.DateJoined,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeUsersText(w io.Writer, list []*models.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tACTIVE\tSTAFF\tJOINED")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%s\n",
			u.ID, u.UserName, u.Email, u.IsActive, u.IsStaff, u.DateJoined.Format(time.DateOnly))
	}
	return tw.Flush()
}
