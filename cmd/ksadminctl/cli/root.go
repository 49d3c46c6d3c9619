// Package cli implements the ksadminctl operator commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ks-enterprise/ks-admin/internal/app"
	"github.com/ks-enterprise/ks-admin/internal/platform/db"
	"github.com/ks-enterprise/ks-admin/internal/users"
)

// Bootstrapper creates or resets the administrator account.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, req users.BootstrapRequest) (*users.User, bool, error)
}

// Deps lets tests replace the database and queue side of each command.
type Deps struct {
	LoadConfig       func() (*app.Config, error)
	Migrate          func(ctx context.Context, dsn string, logger *slog.Logger) error
	OpenBootstrapper func(ctx context.Context, cfg *app.Config) (Bootstrapper, func(), error)
	OpenJobs         func(cfg *app.Config) (*JobsCLI, error)
	Getenv           func(key string) string
}

// DefaultDeps wires the commands to PostgreSQL and Redis.
func DefaultDeps() Deps {
	return Deps{
		LoadConfig: app.LoadConfig,
		Migrate:    db.Migrate,
		OpenBootstrapper: func(ctx context.Context, cfg *app.Config) (Bootstrapper, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return nil, nil, err
			}
			svc := users.NewService(users.NewRepository(pool), nil, app.NewLogger(cfg))
			return svc, pool.Close, nil
		},
		OpenJobs: func(cfg *app.Config) (*JobsCLI, error) {
			return NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}), nil
		},
		Getenv: os.Getenv,
	}
}

// NewRootCommand builds the ksadminctl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "ksadminctl",
		Short:         "Operator commands for the KS Enterprise admin API",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file before running")

	root.AddCommand(newMigrateCommand(deps))
	root.AddCommand(newBootstrapAdminCommand(deps))
	root.AddCommand(newJobsCommand(deps))
	return root
}

func loadConfig(deps Deps) (*app.Config, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
