package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner is a controllable CycleRunner for manager tests.
type stubRunner struct {
	mu      sync.Mutex
	calls   int
	err     error
	outcome CycleOutcome
	block   bool
}

func (r *stubRunner) RunCycle(ctx context.Context, robotID string, tracker *FlowTracker, startBattery int) (CycleOutcome, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	block := r.block
	outcome := r.outcome
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return CycleOutcome{}, ctx.Err()
	}
	if err != nil {
		return CycleOutcome{}, err
	}
	return outcome, nil
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestManager(t *testing.T, runner CycleRunner) *Manager {
	t.Helper()
	cfg := testConfig()
	m := NewManager(cfg, runner, NewGenerator(cfg), testLogger())
	t.Cleanup(m.Close)
	return m
}

func TestManagerRegistersFleet(t *testing.T) {
	m := newTestManager(t, &stubRunner{})

	states := m.ListStatus()
	require.Len(t, states, 3)
	assert.Equal(t, "AGV-001", states[0].RobotID)
	assert.Equal(t, "AGV-003", states[2].RobotID)
	for _, s := range states {
		assert.Equal(t, StatusStopped, s.Status)
		assert.GreaterOrEqual(t, s.BatteryPercent, 60)
		assert.LessOrEqual(t, s.BatteryPercent, 100)
	}
}

func TestManagerUnknownRobot(t *testing.T) {
	m := newTestManager(t, &stubRunner{})

	_, err := m.Start("AGV-999")
	assert.ErrorIs(t, err, ErrUnknownRobot)

	_, err = m.Stop("AGV-999")
	assert.ErrorIs(t, err, ErrUnknownRobot)

	_, _, err = m.GetStatus("AGV-999")
	assert.ErrorIs(t, err, ErrUnknownRobot)
}

func TestManagerStartIsIdempotent(t *testing.T) {
	runner := &stubRunner{block: true}
	m := newTestManager(t, runner)

	state, err := m.Start("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)

	// A second start is a no-op, not a second driver.
	state, err = m.Start("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)

	require.Eventually(t, func() bool { return runner.callCount() >= 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, runner.callCount())
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := newTestManager(t, &stubRunner{block: true})

	_, err := m.Start("AGV-001")
	require.NoError(t, err)

	state, err := m.Stop("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, state.Status)

	state, err = m.Stop("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, state.Status)
}

func TestManagerSuccessfulCycleUpdatesCounters(t *testing.T) {
	runner := &stubRunner{outcome: CycleOutcome{MissionID: "m-1", EndBattery: 72, DataPoints: 55}}
	m := newTestManager(t, runner)

	_, err := m.Start("AGV-001")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _, err := m.GetStatus("AGV-001")
		return err == nil && state.MissionsToday == 1
	}, time.Second, 10*time.Millisecond)

	state, flow, err := m.GetStatus("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, 72, state.BatteryPercent)
	assert.Equal(t, 55, state.DataPointsToday)
	assert.NotNil(t, state.LastMissionAt)
	assert.Equal(t, 1, flow.RobotsProcessed)
	assert.Equal(t, 55, flow.DataPointsGenerated)
	assert.NotNil(t, flow.NextRunAt)
}

func TestManagerCycleFailureDegradesToError(t *testing.T) {
	runner := &stubRunner{err: NewStageError(StageStoreWrite, errors.New("disk full"))}
	m := newTestManager(t, runner)

	_, err := m.Start("AGV-001")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _, err := m.GetStatus("AGV-001")
		return err == nil && state.Status == StatusError
	}, time.Second, 10*time.Millisecond)

	state, _, err := m.GetStatus("AGV-001")
	require.NoError(t, err)
	assert.Contains(t, state.ErrorDetail, "disk full")
	assert.Equal(t, 1, state.FailedToday)
	assert.Equal(t, int64(1), m.FailedCyclesToday())

	// Other robots are unaffected.
	other, _, err := m.GetStatus("AGV-002")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, other.Status)
}

func TestManagerRestartAfterErrorClearsDetail(t *testing.T) {
	runner := &stubRunner{err: errors.New("boom")}
	m := newTestManager(t, runner)

	_, err := m.Start("AGV-001")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		state, _, _ := m.GetStatus("AGV-001")
		return state.Status == StatusError
	}, time.Second, 10*time.Millisecond)

	runner.mu.Lock()
	runner.err = nil
	runner.block = true
	runner.mu.Unlock()

	state, err := m.Start("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)
	assert.Empty(t, state.ErrorDetail)
}

func TestManagerMaintenanceTransitions(t *testing.T) {
	m := newTestManager(t, &stubRunner{block: true})

	// A stopped robot can enter maintenance.
	state, err := m.SetMaintenance("AGV-001", true)
	require.NoError(t, err)
	assert.Equal(t, StatusMaintenance, state.Status)
	assert.NotNil(t, state.MaintenanceSince)

	// It cannot be started while under maintenance.
	_, err = m.Start("AGV-001")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Release returns it to stopped.
	state, err = m.SetMaintenance("AGV-001", false)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, state.Status)
	assert.Nil(t, state.MaintenanceSince)

	// Releasing a robot not under maintenance is rejected.
	_, err = m.SetMaintenance("AGV-001", false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// A running robot must stop first.
	_, err = m.Start("AGV-002")
	require.NoError(t, err)
	_, err = m.SetMaintenance("AGV-002", true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManagerStartAllSkipsMaintenance(t *testing.T) {
	m := newTestManager(t, &stubRunner{block: true})

	_, err := m.SetMaintenance("AGV-002", true)
	require.NoError(t, err)

	started := m.StartAll()
	assert.Equal(t, 2, started)

	state, _, _ := m.GetStatus("AGV-002")
	assert.Equal(t, StatusMaintenance, state.Status)

	stopped := m.StopAll()
	assert.Equal(t, 2, stopped)
}

func TestManagerResetTouchesOnlyFlow(t *testing.T) {
	runner := &stubRunner{outcome: CycleOutcome{MissionID: "m-1", EndBattery: 70, DataPoints: 10}}
	m := newTestManager(t, runner)

	_, err := m.Start("AGV-001")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, flow, _ := m.GetStatus("AGV-001")
		return flow.RobotsProcessed == 1
	}, time.Second, 10*time.Millisecond)

	state, err := m.Reset("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, 70, state.BatteryPercent)

	_, flow, err := m.GetStatus("AGV-001")
	require.NoError(t, err)
	assert.Equal(t, StageInit, flow.CurrentStage)
	assert.Equal(t, 0, flow.RobotsProcessed)
}

func TestManagerResetDailyCounters(t *testing.T) {
	runner := &stubRunner{err: errors.New("boom")}
	m := newTestManager(t, runner)

	_, err := m.Start("AGV-001")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.FailedCyclesToday() == 1 }, time.Second, 10*time.Millisecond)

	m.ResetDailyCounters()

	assert.Equal(t, int64(0), m.FailedCyclesToday())
	state, _, _ := m.GetStatus("AGV-001")
	assert.Equal(t, 0, state.FailedToday)
	assert.Equal(t, 0, state.MissionsToday)
}
