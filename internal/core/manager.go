// services/fleet/internal/core/manager.go
package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"example.com/backstage/services/fleet/config"
	"github.com/sirupsen/logrus"
)

// robotHandle is the exclusively-owned state of one robot. All access
// goes through its mutex; the manager's registry map itself is fixed
// after construction.
type robotHandle struct {
	mu      sync.Mutex
	state   RobotState
	tracker *FlowTracker
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns per-robot lifecycle state and the workers of record
// driving each robot's cycles. Control operations serialize against an
// in-flight cycle advance for the same robot; distinct robots proceed
// fully in parallel.
type Manager struct {
	robots   map[string]*robotHandle
	ids      []string
	runner   CycleRunner
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time

	failedToday atomic.Int64
}

// NewManager registers the fleet (AGV-001..robot_count) with default
// stopped status and a battery level from the configured start range.
func NewManager(cfg *config.Config, runner CycleRunner, generator *Generator, logger *logrus.Logger) *Manager {
	m := &Manager{
		robots:   make(map[string]*robotHandle, cfg.Simulation.RobotCount),
		runner:   runner,
		interval: time.Duration(cfg.Scheduling.MissionIntervalMinutes) * time.Minute,
		logger:   logger,
		now:      time.Now,
	}

	for i := 1; i <= cfg.Simulation.RobotCount; i++ {
		id := fmt.Sprintf("AGV-%03d", i)
		m.ids = append(m.ids, id)
		m.robots[id] = &robotHandle{
			state: RobotState{
				RobotID:        id,
				Status:         StatusStopped,
				BatteryPercent: generator.StartBattery(),
			},
			tracker: NewFlowTracker(),
		}
	}

	logger.WithField("robot_count", len(m.ids)).Info("Robot manager initialized")
	return m
}

func (m *Manager) handle(robotID string) (*robotHandle, error) {
	h, ok := m.robots[robotID]
	if !ok {
		return nil, ErrUnknownRobot
	}
	return h, nil
}

// Start transitions a stopped/idle/error robot to running and begins
// driving its cycles on the configured interval. Idempotent on an
// already-running robot. A robot under maintenance cannot be started.
func (m *Manager) Start(robotID string) (RobotState, error) {
	h, err := m.handle(robotID)
	if err != nil {
		return RobotState{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state.Status {
	case StatusRunning:
		// Already running: same observable state, no duplicate cycle.
		return h.state, nil
	case StatusMaintenance:
		return RobotState{}, fmt.Errorf("%w: robot %s is under maintenance", ErrInvalidTransition, robotID)
	}

	now := m.now()
	h.state.Status = StatusRunning
	h.state.ErrorDetail = ""
	h.state.LastSeen = now
	h.state.StartedAt = &now
	h.state.MaintenanceSince = nil

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go m.drive(ctx, h, robotID)

	m.logger.WithField("robot_id", robotID).Info("Robot started")
	return h.state, nil
}

// Stop transitions the robot to stopped and cancels its scheduled
// cycles. Mission history is untouched. Idempotent.
func (m *Manager) Stop(robotID string) (RobotState, error) {
	h, err := m.handle(robotID)
	if err != nil {
		return RobotState{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Status == StatusStopped {
		return h.state, nil
	}

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}

	now := m.now()
	if h.state.StartedAt != nil {
		h.state.TotalRuntimeSec += now.Sub(*h.state.StartedAt).Seconds()
		h.state.StartedAt = nil
	}
	h.state.Status = StatusStopped
	h.state.ErrorDetail = ""
	h.state.LastSeen = now
	h.state.MaintenanceSince = nil

	m.logger.WithField("robot_id", robotID).Info("Robot stopped")
	return h.state, nil
}

// Reset returns the robot's process flow to the init stage and zeroes
// its counters. Status and battery are untouched.
func (m *Manager) Reset(robotID string) (RobotState, error) {
	h, err := m.handle(robotID)
	if err != nil {
		return RobotState{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracker.Reset()

	m.logger.WithField("robot_id", robotID).Info("Robot flow reset")
	return h.state, nil
}

// SetMaintenance puts a non-running robot into maintenance, or releases
// it back to stopped.
func (m *Manager) SetMaintenance(robotID string, on bool) (RobotState, error) {
	h, err := m.handle(robotID)
	if err != nil {
		return RobotState{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := m.now()
	if on {
		if h.state.Status == StatusRunning {
			return RobotState{}, fmt.Errorf("%w: stop robot %s before maintenance", ErrInvalidTransition, robotID)
		}
		h.state.Status = StatusMaintenance
		h.state.ErrorDetail = ""
		h.state.MaintenanceSince = &now
	} else {
		if h.state.Status != StatusMaintenance {
			return RobotState{}, fmt.Errorf("%w: robot %s is not under maintenance", ErrInvalidTransition, robotID)
		}
		h.state.Status = StatusStopped
		h.state.MaintenanceSince = nil
	}
	h.state.LastSeen = now

	return h.state, nil
}

// GetStatus returns a snapshot of the robot and its flow progress.
func (m *Manager) GetStatus(robotID string) (RobotState, FlowProgress, error) {
	h, err := m.handle(robotID)
	if err != nil {
		return RobotState{}, FlowProgress{}, err
	}

	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	return state, h.tracker.Progress(), nil
}

// ListStatus returns snapshots of every registered robot, ordered by id.
func (m *Manager) ListStatus() []RobotState {
	states := make([]RobotState, 0, len(m.ids))
	for _, id := range m.ids {
		h := m.robots[id]
		h.mu.Lock()
		states = append(states, h.state)
		h.mu.Unlock()
	}
	sort.Slice(states, func(i, j int) bool { return states[i].RobotID < states[j].RobotID })
	return states
}

// StartAll starts every robot not already running. Robots under
// maintenance are skipped, not failed.
func (m *Manager) StartAll() (started int) {
	for _, id := range m.ids {
		if _, err := m.Start(id); err == nil {
			started++
		}
	}
	return started
}

// StopAll stops every running robot.
func (m *Manager) StopAll() (stopped int) {
	for _, id := range m.ids {
		h := m.robots[id]
		h.mu.Lock()
		running := h.state.Status == StatusRunning
		h.mu.Unlock()
		if running {
			if _, err := m.Stop(id); err == nil {
				stopped++
			}
		}
	}
	return stopped
}

// ResetAllFlows resets every robot's process flow without touching
// status or battery. Backs the fleet-wide dashboard reset.
func (m *Manager) ResetAllFlows() {
	for _, id := range m.ids {
		h := m.robots[id]
		h.mu.Lock()
		h.tracker.Reset()
		h.mu.Unlock()
	}
	m.logger.Info("All process flows reset")
}

// ResetDailyCounters clears the same-day counters. Reserved for the
// retention manager's daily boundary.
func (m *Manager) ResetDailyCounters() {
	for _, id := range m.ids {
		h := m.robots[id]
		h.mu.Lock()
		h.state.MissionsToday = 0
		h.state.DataPointsToday = 0
		h.state.FailedToday = 0
		h.mu.Unlock()
	}
	m.failedToday.Store(0)
	m.logger.Info("Daily counters reset")
}

// FailedCyclesToday reports fleet-wide cycle failures since the last
// daily reset. Failed cycles never write missions, so the store cannot
// answer this.
func (m *Manager) FailedCyclesToday() int64 {
	return m.failedToday.Load()
}

// Close stops all drivers. Used during shutdown.
func (m *Manager) Close() {
	m.StopAll()
}

// drive is the worker of record for one robot: run a cycle, wait the
// interval, repeat. A stage failure degrades the robot to error and
// halts the driver; other robots are unaffected.
func (m *Manager) drive(ctx context.Context, h *robotHandle, robotID string) {
	defer close(h.done)

	for {
		h.mu.Lock()
		battery := h.state.BatteryPercent
		h.mu.Unlock()

		outcome, err := m.runner.RunCycle(ctx, robotID, h.tracker, battery)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			m.failedToday.Add(1)
			h.mu.Lock()
			h.state.Status = StatusError
			h.state.ErrorDetail = err.Error()
			h.state.FailedToday++
			h.state.LastSeen = m.now()
			if h.cancel != nil {
				h.cancel()
				h.cancel = nil
			}
			h.mu.Unlock()

			m.logger.WithField("robot_id", robotID).WithError(err).
				Error("Robot degraded to error")
			return
		}

		now := m.now()
		nextRun := now.Add(m.interval)

		h.mu.Lock()
		h.state.BatteryPercent = outcome.EndBattery
		h.state.MissionsToday++
		h.state.DataPointsToday += outcome.DataPoints
		h.state.LastSeen = now
		h.state.LastMissionAt = &now
		h.mu.Unlock()

		h.tracker.RecordCycle(outcome.DataPoints, nextRun)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}
