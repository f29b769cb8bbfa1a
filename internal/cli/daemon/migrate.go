package daemon

import (
	"fmt"

	"github.com/cloo-solutions/sheetrag/internal/config"
	"github.com/cloo-solutions/sheetrag/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply the embedded schema migrations to SHEETRAG_DATABASE_URL. Only needed for the postgres index backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.UsesPostgres() {
				return fmt.Errorf("migrations apply to the postgres backend; SHEETRAG_INDEX_BACKEND is %q", cfg.IndexBackend)
			}
			if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
