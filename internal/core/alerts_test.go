package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(now time.Time) *Evaluator {
	e := NewEvaluator(testConfig().Alerts)
	e.now = func() time.Time { return now }
	return e
}

func TestEvaluatorLowBattery(t *testing.T) {
	now := time.Now()
	e := newTestEvaluator(now)

	tests := []struct {
		name     string
		battery  int
		expected int
		severity AlertSeverity
	}{
		{"above threshold", 25, 0, ""},
		{"just below threshold", 23, 1, SeverityWarning},
		{"below critical", 10, 1, SeverityCritical},
		{"at critical boundary", 15, 1, SeverityWarning},
		{"fully drained", 0, 1, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robots := []RobotState{{RobotID: "AGV-001", Status: StatusRunning, BatteryPercent: tt.battery, LastSeen: now}}
			alerts := e.Evaluate(robots)
			require.Len(t, alerts, tt.expected)
			if tt.expected > 0 {
				assert.Equal(t, AlertLowBattery, alerts[0].Type)
				assert.Equal(t, tt.severity, alerts[0].Severity)
				assert.Equal(t, float64(tt.battery), alerts[0].Value)
			}
		})
	}
}

func TestEvaluatorConnectionLost(t *testing.T) {
	now := time.Now()
	e := newTestEvaluator(now)

	robots := []RobotState{
		{RobotID: "AGV-001", Status: StatusRunning, BatteryPercent: 90, LastSeen: now.Add(-2 * time.Hour)},
		{RobotID: "AGV-002", Status: StatusRunning, BatteryPercent: 90, LastSeen: now.Add(-30 * time.Minute)},
		// A stopped robot is expected to be silent.
		{RobotID: "AGV-003", Status: StatusStopped, BatteryPercent: 90, LastSeen: now.Add(-3 * time.Hour)},
		// Never seen means never connected, not lost.
		{RobotID: "AGV-004", Status: StatusIdle, BatteryPercent: 90},
	}

	alerts := e.Evaluate(robots)
	require.Len(t, alerts, 1)
	assert.Equal(t, "AGV-001", alerts[0].RobotID)
	assert.Equal(t, AlertConnectionLost, alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, 2*time.Hour, alerts[0].Duration)
}

func TestEvaluatorMaintenanceOverrun(t *testing.T) {
	now := time.Now()
	e := newTestEvaluator(now)

	within := now.Add(-20 * time.Minute)
	overrun := now.Add(-45 * time.Minute)
	robots := []RobotState{
		{RobotID: "AGV-001", Status: StatusMaintenance, BatteryPercent: 90, LastSeen: now, MaintenanceSince: &within},
		{RobotID: "AGV-002", Status: StatusMaintenance, BatteryPercent: 90, LastSeen: now, MaintenanceSince: &overrun},
	}

	alerts := e.Evaluate(robots)
	require.Len(t, alerts, 1)
	assert.Equal(t, "AGV-002", alerts[0].RobotID)
	assert.Equal(t, AlertMaintenanceNeeded, alerts[0].Type)
	assert.Equal(t, 15*time.Minute, alerts[0].Duration)
}

func TestEvaluatorOrdering(t *testing.T) {
	now := time.Now()
	e := newTestEvaluator(now)

	robots := []RobotState{
		{RobotID: "AGV-003", Status: StatusRunning, BatteryPercent: 20, LastSeen: now},
		{RobotID: "AGV-001", Status: StatusRunning, BatteryPercent: 10, LastSeen: now},
		{RobotID: "AGV-002", Status: StatusRunning, BatteryPercent: 90, LastSeen: now.Add(-2 * time.Hour)},
	}

	alerts := e.Evaluate(robots)
	require.Len(t, alerts, 3)

	// Critical first, ties broken by robot id.
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "AGV-001", alerts[0].RobotID)
	assert.Equal(t, SeverityCritical, alerts[1].Severity)
	assert.Equal(t, "AGV-002", alerts[1].RobotID)
	assert.Equal(t, SeverityWarning, alerts[2].Severity)
	assert.Equal(t, "AGV-003", alerts[2].RobotID)
}

func TestEvaluatorCriticalFilter(t *testing.T) {
	now := time.Now()
	e := newTestEvaluator(now)

	robots := []RobotState{
		{RobotID: "AGV-001", Status: StatusRunning, BatteryPercent: 10, LastSeen: now},
		{RobotID: "AGV-002", Status: StatusRunning, BatteryPercent: 20, LastSeen: now},
	}

	critical := e.Critical(robots)
	require.Len(t, critical, 1)
	assert.Equal(t, "AGV-001", critical[0].RobotID)
}

func TestEvaluatorHealthyFleetIsQuiet(t *testing.T) {
	now := time.Now()
	e := newTestEvaluator(now)

	robots := []RobotState{
		{RobotID: "AGV-001", Status: StatusRunning, BatteryPercent: 90, LastSeen: now},
		{RobotID: "AGV-002", Status: StatusStopped, BatteryPercent: 80, LastSeen: now.Add(-10 * time.Minute)},
	}
	assert.Empty(t, e.Evaluate(robots))
}
