// README: migrate command; applies migrations/*.sql to the configured database.
package main

import (
	"github.com/spf13/cobra"

	"ridebid/internal/infra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := requireDSN(cfg); err != nil {
				return err
			}
			db, err := infra.NewDB(cmd.Context(), cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := infra.ApplyMigrations(cmd.Context(), db, dir); err != nil {
				return err
			}
			log.Info("migrations applied", "dir", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding *.sql files")
	return cmd
}
