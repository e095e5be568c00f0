// services/fleet/internal/core/flow.go
package core

import (
	"sync"
	"time"
)

// Stage is one named step of a robot's process flow.
type Stage string

// The seven stages of one mission cycle, in execution order.
const (
	StageInit              Stage = "init"
	StageConfigLoad        Stage = "config_load"
	StageStoreConnect      Stage = "store_connect"
	StageScheduling        Stage = "scheduling"
	StageMissionGeneration Stage = "mission_generation"
	StageSensorData        Stage = "sensor_data"
	StageStoreWrite        Stage = "store_write"
)

// Stages lists the pipeline in order.
var Stages = []Stage{
	StageInit,
	StageConfigLoad,
	StageStoreConnect,
	StageScheduling,
	StageMissionGeneration,
	StageSensorData,
	StageStoreWrite,
}

// FlowProgress is a snapshot of a tracker's position in the pipeline.
type FlowProgress struct {
	CurrentStage        Stage         `json:"current_stage"`
	StageIndex          int           `json:"stage_index"`
	ElapsedInStage      time.Duration `json:"elapsed_in_stage"`
	RobotsProcessed     int           `json:"robots_processed"`
	DataPointsGenerated int           `json:"data_points_generated"`
	NextRunAt           *time.Time    `json:"next_run_at,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
}

// FlowTracker models one robot's repeating mission cycle as a pipeline
// of named stages. Advancing is monotonic within a cycle; Reset is the
// only transition allowed from any state.
type FlowTracker struct {
	mu                  sync.Mutex
	stageIdx            int
	stageStartedAt      time.Time
	robotsProcessed     int
	dataPointsGenerated int
	nextRunAt           *time.Time
	lastError           string
	now                 func() time.Time
}

// NewFlowTracker returns a tracker positioned at the init stage.
func NewFlowTracker() *FlowTracker {
	t := &FlowTracker{now: time.Now}
	t.stageStartedAt = t.now()
	return t
}

// CurrentStage returns the stage the tracker is in.
func (t *FlowTracker) CurrentStage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stages[t.stageIdx]
}

// Advance moves to the next stage after the current stage's unit of
// work succeeded. Completing the final stage wraps back to init and
// reports cycleComplete — the pipeline is cyclic, not terminal.
func (t *FlowTracker) Advance() (next Stage, cycleComplete bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stageIdx == len(Stages)-1 {
		t.stageIdx = 0
		t.stageStartedAt = t.now()
		return Stages[0], true
	}

	t.stageIdx++
	t.stageStartedAt = t.now()
	return Stages[t.stageIdx], false
}

// BeginCycle realigns the pipeline to init for a fresh cycle. Unlike
// Reset it keeps the accumulated counters: a tracker left mid-pipeline
// by an earlier failure restarts from the top, and the stale error is
// cleared.
func (t *FlowTracker) BeginCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stageIdx = 0
	t.stageStartedAt = t.now()
	t.lastError = ""
}

// Fail records a stage failure. The tracker holds position; the owning
// robot is expected to be transitioned to error by the manager.
func (t *FlowTracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = err.Error()
}

// Reset force-transitions to init and zeroes the counters, regardless
// of the current stage. Allowed from any state, including mid-cycle.
func (t *FlowTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stageIdx = 0
	t.stageStartedAt = t.now()
	t.robotsProcessed = 0
	t.dataPointsGenerated = 0
	t.nextRunAt = nil
	t.lastError = ""
}

// RecordCycle accumulates the counters after a completed cycle.
func (t *FlowTracker) RecordCycle(dataPoints int, nextRun time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.robotsProcessed++
	t.dataPointsGenerated += dataPoints
	t.nextRunAt = &nextRun
}

// Progress returns the current pipeline position and counters.
func (t *FlowTracker) Progress() FlowProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := FlowProgress{
		CurrentStage:        Stages[t.stageIdx],
		StageIndex:          t.stageIdx,
		ElapsedInStage:      t.now().Sub(t.stageStartedAt),
		RobotsProcessed:     t.robotsProcessed,
		DataPointsGenerated: t.dataPointsGenerated,
		LastError:           t.lastError,
	}
	if t.nextRunAt != nil {
		next := *t.nextRunAt
		p.NextRunAt = &next
	}
	return p
}
