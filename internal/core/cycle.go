// services/fleet/internal/core/cycle.go
package core

import (
	"context"
	"errors"
	"time"

	"example.com/backstage/services/fleet/config"
	"github.com/sirupsen/logrus"
)

// CycleOutcome reports what one completed cycle produced.
type CycleOutcome struct {
	MissionID  string
	EndBattery int
	DataPoints int
}

// CycleRunner drives one robot through a full mission cycle. The
// manager owns scheduling; the runner owns the stage work.
type CycleRunner interface {
	RunCycle(ctx context.Context, robotID string, tracker *FlowTracker, startBattery int) (CycleOutcome, error)
}

// Simulator is the production cycle runner: it advances the tracker
// stage by stage, generating synthetic values and persisting the
// result. A failing stage halts the cycle without writing a partial
// mission.
type Simulator struct {
	cfg       *config.Config
	generator *Generator
	writer    *Writer
	repo      Repository
	logger    *logrus.Logger
	now       func() time.Time
}

// NewSimulator wires the cycle runner.
func NewSimulator(cfg *config.Config, generator *Generator, writer *Writer, repo Repository, logger *logrus.Logger) *Simulator {
	return &Simulator{
		cfg:       cfg,
		generator: generator,
		writer:    writer,
		repo:      repo,
		logger:    logger,
		now:       time.Now,
	}
}

// RunCycle executes the seven stages in order. A context cancellation
// between stages stops the cycle without marking the robot as failed;
// a stage failure is returned as a *StageError.
func (s *Simulator) RunCycle(ctx context.Context, robotID string, tracker *FlowTracker, startBattery int) (CycleOutcome, error) {
	var (
		windowStart, windowEnd time.Time
		result                 CycleResult
	)

	stageWork := map[Stage]func() error{
		StageInit: func() error { return nil },
		StageConfigLoad: func() error {
			if s.cfg.Simulation.RobotCount <= 0 {
				return errors.New("simulation config missing robot count")
			}
			return nil
		},
		StageStoreConnect: func() error {
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return s.repo.Ping(pctx)
		},
		StageScheduling: func() error {
			windowStart, windowEnd = s.generator.MissionWindow(s.now())
			return nil
		},
		StageMissionGeneration: func() error {
			result = s.generator.Mission(robotID, windowStart, windowEnd, startBattery)
			return nil
		},
		StageSensorData: func() error {
			result.DataPoints = s.generator.DataPoints(windowStart, windowEnd)
			return nil
		},
	}

	var outcome CycleOutcome

	// The executing stage is always derived from the tracker, so the
	// reported position can never drift from the work being done. A
	// tracker left mid-pipeline by an earlier failure restarts from
	// the top.
	tracker.BeginCycle()
	for {
		// A stop observed between stages prevents the next stage from
		// starting; the current position is preserved.
		if err := ctx.Err(); err != nil {
			return CycleOutcome{}, err
		}

		stage := tracker.CurrentStage()

		var err error
		if stage == StageStoreWrite {
			wr := s.writer.Write(ctx, result)
			if !wr.Success {
				err = errors.New(wr.Error)
			} else {
				outcome = CycleOutcome{
					MissionID:  wr.MissionID,
					EndBattery: result.EndBattery,
					DataPoints: wr.DataPointsWritten,
				}
			}
		} else {
			err = stageWork[stage]()
		}

		if err != nil {
			stageErr := NewStageError(stage, err)
			tracker.Fail(stageErr)
			s.logger.WithFields(logrus.Fields{
				"robot_id": robotID,
				"stage":    string(stage),
			}).WithError(err).Error("Cycle stage failed")
			return CycleOutcome{}, stageErr
		}

		if _, cycleComplete := tracker.Advance(); cycleComplete {
			break
		}
	}

	return outcome, nil
}
