package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophaccounts/internal/server/services"
	"github.com/spf13/cobra"
)

type superuserOptions struct {
	userName string
	email    string
	password string
	noInput  bool
}

func NewCreateSuperuserCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	opts := &superuserOptions{}

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a staff account with a verified email",
		Long: `Create a superuser. The email, when given, is stored as a verified
primary address and no confirmation mail is sent.

Missing values are prompted for unless --no-input is set. With
--no-input and no --password the account gets an unusable password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.complete(cmd); err != nil {
				return err
			}
			return withBackend(cmd, rootOpts, open, func(ctx context.Context, b *Backend) error {
				return runCreateSuperuser(ctx, cmd, b, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.userName, "username", "", "username")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "password (prompted when omitted)")
	cmd.Flags().BoolVar(&opts.noInput, "no-input", false, "never prompt")

	return cmd
}

// complete prompts for whatever the flags left out.
func (o *superuserOptions) complete(cmd *cobra.Command) error {
	if o.noInput {
		return nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	var err error
	if o.userName == "" {
		if o.userName, err = GetSimpleText(reader, "Username", out); err != nil {
			return err
		}
	}
	if o.email == "" && !cmd.Flags().Changed("email") {
		if o.email, err = GetSimpleText(reader, "Email address", out); err != nil {
			return err
		}
	}
	if o.password == "" {
		fd := int(os.Stdin.Fd())
		if !isTerminal(fd) {
			return errors.New("password required: use --password or run in a terminal")
		}
		if o.password, err = GetNewPassword(fd, out); err != nil {
			return err
		}
	}
	return nil
}

func runCreateSuperuser(ctx context.Context, cmd *cobra.Command, b *Backend, o *superuserOptions) error {
	u, err := b.Accounts.CreateSuperuser(ctx, services.SuperuserInput{
		UserName:   o.userName,
		Email:      o.email,
		Password:   o.password,
		NoPassword: o.noInput,
	})
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			for _, field := range ve.Fields.Fields() {
				for _, msg := range ve.Fields.Get(field) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, msg)
				}
			}
			return errors.New("superuser not created")
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s created successfully.\n", u.UserName)
	return nil
}
