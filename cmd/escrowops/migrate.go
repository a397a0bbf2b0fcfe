package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"escrowops/internal/platform/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Manage the control-plane schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is not set")
		}
		db, err := postgres.Open(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		switch args[0] {
		case "up":
			if err := postgres.Migrate(db); err != nil {
				return err
			}
		case "down":
			if err := postgres.MigrateDown(db); err != nil {
				return err
			}
		}
		v, dirty, err := postgres.Version(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", v, dirty)
		return nil
	},
}
