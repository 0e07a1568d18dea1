package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer func() { _ = logger.Sync() }()
			_, closeStore, err := openStore(context.Background(), cfg, logger, true)
			if err != nil {
				return WrapExitError(ExitFailure, "migrate", err)
			}
			closeStore()
			return newFormatter(rootOpts, cmd).Print(map[string]any{"migrated": true, "driver": cfg.DatabaseDriver}, "migrations applied ("+cfg.DatabaseDriver+")")
		},
	}
}
