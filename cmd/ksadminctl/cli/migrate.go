package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ks-enterprise/ks-admin/internal/app"
)

func newMigrateCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(deps)
			if err != nil {
				return err
			}
			if err := deps.Migrate(cmd.Context(), cfg.PGDSN, app.NewLogger(cfg)); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
