package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taskstream/internal/config"
	"taskstream/internal/infrastructure/postgres"
)

var ErrNotPostgres = errors.New("migrate requires the postgres store driver")

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, factory, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer factory.Close()

			if cfg.Drivers.Store != config.DriverPostgres {
				return ErrNotPostgres
			}

			pool, err := factory.Postgres(ctx)
			if err != nil {
				return err
			}
			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
}
