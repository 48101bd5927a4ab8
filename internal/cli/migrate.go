package cli

import (
	"github.com/monocle-dev/crons/db"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if err := db.MigrateDatabase(); err != nil {
				return err
			}

			a.log.Info("Migrations applied")
			return nil
		},
	}
}
