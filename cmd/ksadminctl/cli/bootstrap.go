package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ks-enterprise/ks-admin/internal/users"
)

// DefaultPasswordEnv names the variable read for the administrator password.
const DefaultPasswordEnv = "KSADMIN_ADMIN_PASSWORD"

type bootstrapOptions struct {
	username    string
	email       string
	fullName    string
	passwordEnv string
	reset       bool
}

func newBootstrapAdminCommand(deps Deps) *cobra.Command {
	opts := bootstrapOptions{}
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first super admin, or reset an existing one with --reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := deps.Getenv(opts.passwordEnv)
			if password == "" {
				return fmt.Errorf("bootstrap-admin: environment variable %s is empty", opts.passwordEnv)
			}
			cfg, err := loadConfig(deps)
			if err != nil {
				return err
			}
			svc, closeFn, err := deps.OpenBootstrapper(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("bootstrap-admin: connect: %w", err)
			}
			if closeFn != nil {
				defer closeFn()
			}

			user, created, err := svc.Bootstrap(cmd.Context(), users.BootstrapRequest{
				Username: opts.username,
				Email:    opts.email,
				FullName: opts.fullName,
				Password: password,
				Reset:    opts.reset,
			})
			if err != nil {
				return fmt.Errorf("bootstrap-admin: %w", err)
			}
			verb := "reset"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "super admin %q %s (id %d)\n", user.Username, verb, user.ID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.username, "username", "admin", "administrator username")
	flags.StringVar(&opts.email, "email", "", "administrator email")
	flags.StringVar(&opts.fullName, "full-name", "Administrator", "administrator display name")
	flags.StringVar(&opts.passwordEnv, "password-env", DefaultPasswordEnv, "environment variable holding the password")
	flags.BoolVar(&opts.reset, "reset", false, "reset the password and role when the user exists")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
