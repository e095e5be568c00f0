// services/fleet/internal/core/writer.go
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/backstage/services/fleet/internal/infrastructure"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventPublisher pushes fleet events to external consumers (MQTT,
// Service Bus). Implementations must tolerate being nil-wrapped.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, message interface{}) error
}

// Writer turns one completed cycle into mission + data-point records
// and persists them in the configured layout.
type Writer struct {
	repo       Repository
	normalized bool
	events     []EventPublisher
	logger     *logrus.Logger
}

// NewWriter builds a writer. Publishers may be empty; persistence never
// depends on them.
func NewWriter(repo Repository, normalized bool, logger *logrus.Logger, events ...EventPublisher) *Writer {
	ps := make([]EventPublisher, 0, len(events))
	for _, e := range events {
		if e != nil {
			ps = append(ps, e)
		}
	}
	return &Writer{repo: repo, normalized: normalized, events: ps, logger: logger}
}

// Write persists one cycle. Persistence failure is reported in the
// result, never raised, so the cycle loop can degrade the robot
// instead of crashing.
func (w *Writer) Write(ctx context.Context, cr CycleResult) WriteResult {
	start := time.Now()

	mission := &Mission{
		ID:               uuid.New().String(),
		RobotID:          cr.RobotID,
		MissionStartDate: cr.StartTime,
		MissionEndDate:   cr.EndTime,
		StartBattery:     cr.StartBattery,
		EndBattery:       cr.EndBattery,
		RouteName:        cr.RouteName,
		Location:         cr.Location,
		SimulatedAt:      time.Now(),
	}

	var outcome WriteOutcome
	var err error

	if w.normalized {
		outcome, err = w.repo.UpsertMissionNormalized(ctx, mission, cr.DataPoints)
	} else {
		mission.DataPoints, err = json.Marshal(cr.DataPoints)
		if err == nil {
			outcome, err = w.repo.UpsertMissionEmbedded(ctx, mission)
			outcome.PointsWritten = len(cr.DataPoints)
		}
	}

	duration := time.Since(start)
	if err != nil {
		w.logger.WithFields(logrus.Fields{
			"robot_id":    cr.RobotID,
			"duration_ms": duration.Milliseconds(),
		}).WithError(err).Error("Mission write failed")

		return WriteResult{
			Success:  false,
			Duration: duration,
			Error:    fmt.Sprintf("mission write failed: %v", err),
		}
	}

	operation := "update"
	if outcome.Inserted {
		operation = "insert"
	}

	result := WriteResult{
		Success:           true,
		MissionID:         outcome.MissionID,
		DataPointsWritten: outcome.PointsWritten,
		Operation:         operation,
		Duration:          duration,
	}

	w.logger.WithFields(logrus.Fields{
		"robot_id":    cr.RobotID,
		"mission_id":  result.MissionID,
		"data_points": result.DataPointsWritten,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}).Info("Mission persisted")

	w.publishCompleted(ctx, cr, result)
	return result
}

// publishCompleted notifies downstream consumers. Best effort only.
func (w *Writer) publishCompleted(ctx context.Context, cr CycleResult, result WriteResult) {
	if len(w.events) == 0 {
		return
	}

	event := map[string]interface{}{
		"mission_id":  result.MissionID,
		"robot_id":    cr.RobotID,
		"start_time":  cr.StartTime,
		"end_time":    cr.EndTime,
		"end_battery": cr.EndBattery,
		"data_points": result.DataPointsWritten,
		"route_name":  cr.RouteName,
	}

	topic := fmt.Sprintf("missions/%s/completed", cr.RobotID)
	for _, pub := range w.events {
		if err := pub.Publish(ctx, topic, event); err != nil {
			w.logger.WithError(err).WithField("robot_id", cr.RobotID).
				Warn("Failed to publish mission-completed event")
		}
	}
}

// Compile-time checks that the infrastructure publishers satisfy the
// event interface.
var (
	_ EventPublisher = (*infrastructure.Messaging)(nil)
	_ EventPublisher = (*infrastructure.MQTTPublisher)(nil)
)
