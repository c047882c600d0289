// internal/cli/migrate.go
package cli

import (
	"github.com/spf13/cobra"

	"github.com/javajoker/provenance-backend/internal/database"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the read-model schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Env.LoadConfig()
			if err != nil {
				return err
			}
			db, err := opts.Env.OpenDB(cfg)
			if err != nil {
				return err
			}
			if err := database.RunMigrations(db); err != nil {
				return err
			}
			return emit(cmd, opts, map[string]bool{"migrated": true}, "Migrations applied")
		},
	}
}
