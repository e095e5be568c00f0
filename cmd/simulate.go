package cmd

import (
	"context"
	"fmt"
	"time"

	"example.com/backstage/services/fleet/internal/core"
	"example.com/backstage/services/fleet/internal/infrastructure"
	"github.com/spf13/cobra"
)

var (
	simulateSeed       int64
	simulateNormalized bool
	simulateStrict     bool
	simulateCount      int
)

// simulateCmd runs one generation pass for the whole fleet and exits.
// Useful for seeding a database or checking generated value ranges
// without the server.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate one mission per robot and write it to the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulateOnce()
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed (0 = time-based)")
	simulateCmd.Flags().BoolVar(&simulateNormalized, "normalized", false, "write data points to the normalized table")
	simulateCmd.Flags().BoolVar(&simulateStrict, "strict", false, "restrict locations to the configured site layout")
	simulateCmd.Flags().IntVar(&simulateCount, "robots", 0, "robot count override (0 = config value)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulateOnce() error {
	if simulateSeed != 0 {
		cfg.Simulation.RandomSeed = simulateSeed
	}
	if simulateNormalized {
		cfg.Simulation.NormalizedStorage = true
	}
	if simulateStrict {
		cfg.Simulation.StrictMode = true
	}
	if simulateCount > 0 {
		cfg.Simulation.RobotCount = simulateCount
	}

	db, err := infrastructure.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	repo := core.NewRepository(db.DB)
	generator := core.NewGenerator(cfg)
	writer := core.NewWriter(repo, cfg.Simulation.NormalizedStorage, logger)

	ctx := context.Background()
	base := time.Now()
	written, failed := 0, 0

	for i := 1; i <= cfg.Simulation.RobotCount; i++ {
		robotID := fmt.Sprintf("AGV-%03d", i)

		start, end := generator.MissionWindow(base)
		cycle := generator.Mission(robotID, start, end, generator.StartBattery())
		cycle.DataPoints = generator.DataPoints(start, end)

		result := writer.Write(ctx, cycle)
		if result.Success {
			written++
		} else {
			failed++
			logger.WithField("robot_id", robotID).Error(result.Error)
		}
	}

	logger.Infof("Simulation pass complete: %d written, %d failed", written, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d missions failed to write", failed, cfg.Simulation.RobotCount)
	}
	return nil
}
