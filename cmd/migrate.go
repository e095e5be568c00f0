// services/fleet/cmd/migrate.go
package cmd

import (
	"context"
	"fmt"

	"example.com/backstage/services/fleet/internal/core"
	"example.com/backstage/services/fleet/internal/infrastructure"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Applies all pending database migrations to ensure the schema is up to date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrations() error {
	logger.Info("Running database migrations...")

	// Connect to database
	db, err := infrastructure.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Auto-migrate all models
	logger.Info("Migrating models...")

	models := []interface{}{
		&core.Mission{},
		&core.DataPoint{},
		&core.MissionArchive{},
		&core.DataPointArchive{},
		&core.ArchiveRecord{},
	}

	for _, model := range models {
		if err := db.DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
		logger.Infof("Migrated %T", model)
	}

	repo := core.NewRepository(db.DB)
	if err := repo.EnsureIndexes(context.Background(), cfg.Simulation.NormalizedStorage); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}
