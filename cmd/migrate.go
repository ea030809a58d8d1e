package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"babybot/pkg/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	Long:  "Applies the embedded schema migrations to the database named by database.dsn.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, log, err := loadRuntime("cmd.migrate")
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return errors.New("database.dsn is required")
		}

		applied, err := postgres.Migrate(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		log.Info("Migrations applied", "versions", applied)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
