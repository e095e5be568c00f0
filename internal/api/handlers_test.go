package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/backstage/services/fleet/config"
	"example.com/backstage/services/fleet/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRepo is a do-nothing Repository so the handler tests never need a
// database.
type stubRepo struct{}

func (stubRepo) UpsertMissionEmbedded(ctx context.Context, mission *core.Mission) (core.WriteOutcome, error) {
	return core.WriteOutcome{MissionID: mission.ID, Inserted: true}, nil
}

func (stubRepo) UpsertMissionNormalized(ctx context.Context, mission *core.Mission, points []core.DataPoint) (core.WriteOutcome, error) {
	return core.WriteOutcome{MissionID: mission.ID, Inserted: true, PointsWritten: len(points)}, nil
}

func (stubRepo) OperationalFacts(ctx context.Context, normalized bool, recentSince time.Time) (core.OperationalFacts, error) {
	return core.OperationalFacts{TotalMissions: 42, ActiveRobots: 3}, nil
}

func (stubRepo) HourlyCounts(ctx context.Context, dayStart, dayEnd time.Time) ([]core.HourCount, error) {
	return nil, nil
}

func (stubRepo) DailyCounts(ctx context.Context, dayStart time.Time, now time.Time) (core.DailyCounts, error) {
	return core.DailyCounts{}, nil
}

func (stubRepo) CopyRangeToArchive(ctx context.Context, from, to time.Time, normalized bool) (int64, error) {
	return 0, nil
}

func (stubRepo) RecordArchive(ctx context.Context, rec *core.ArchiveRecord) error { return nil }

func (stubRepo) SuccessfulArchives(ctx context.Context) ([]core.ArchiveRecord, error) {
	return nil, nil
}

func (stubRepo) OldestMissionDate(ctx context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (stubRepo) DeleteMissionsBefore(ctx context.Context, cutoff time.Time, normalized bool) (int64, error) {
	return 0, nil
}

func (stubRepo) EnsureIndexes(ctx context.Context, normalized bool) error { return nil }
func (stubRepo) Ping(ctx context.Context) error                          { return nil }

// blockingRunner keeps started robots running without touching the store.
type blockingRunner struct{}

func (blockingRunner) RunCycle(ctx context.Context, robotID string, tracker *core.FlowTracker, startBattery int) (core.CycleOutcome, error) {
	<-ctx.Done()
	return core.CycleOutcome{}, ctx.Err()
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Simulation: config.SimulationConfig{
			RobotCount: 3, DataPointsMin: 3, DataPointsMax: 6,
			MissionDurationMin: 4, MissionDurationMax: 10, TimeGridMinutes: 10,
		},
		Scheduling: config.SchedulingConfig{MissionIntervalMinutes: 10},
		Battery:    config.BatteryConfig{StartMin: 60, StartMax: 100, DrainMin: 5, DrainMax: 15},
		Stats:      config.StatsConfig{CacheTTL: 5 * time.Second, HourlyTarget: 6, QueryTimeout: time.Second},
		Alerts: config.AlertConfig{
			LowBatteryThreshold: 25, CriticalBatteryThreshold: 15,
			ConnectionStaleAfter: time.Hour, MaintenanceGrace: 30 * time.Minute,
		},
		Retention: config.RetentionConfig{Enabled: true, MaxAgeDays: 30},
	}

	repo := stubRepo{}
	manager := core.NewManager(cfg, blockingRunner{}, core.NewGenerator(cfg), logger)
	t.Cleanup(manager.Close)

	services := &core.ServiceRegistry{
		Manager:   manager,
		Stats:     core.NewAggregator(repo, nil, manager, false, cfg.Stats.CacheTTL, cfg.Stats.HourlyTarget, cfg.Stats.QueryTimeout, logger),
		Alerts:    core.NewEvaluator(cfg.Alerts),
		Retention: core.NewRetentionManager(repo, manager, cfg.Retention, false, logger),
	}

	router := gin.New()
	SetupRoutes(router, NewAPIHandlers(services), logger)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestListRobots(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodGet, "/api/v1/robots", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Robots []core.RobotState `json:"robots"`
		Count  int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "AGV-001", resp.Robots[0].RobotID)
}

func TestRobotLifecycleOverHTTP(t *testing.T) {
	router := testRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/robots/AGV-001/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/robots/AGV-001/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Robot core.RobotState   `json:"robot"`
		Flow  core.FlowProgress `json:"process_flow"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, core.StatusRunning, status.Robot.Status)
	assert.Equal(t, core.StageInit, status.Flow.CurrentStage)

	w = doRequest(router, http.MethodPost, "/api/v1/robots/AGV-001/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRobotReturns404(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodPost, "/api/v1/robots/AGV-999/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaintenanceConflictReturns409(t *testing.T) {
	router := testRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/robots/AGV-001/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/robots/AGV-001/maintenance", `{"enabled": true}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMaintenanceRequiresBody(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodPost, "/api/v1/robots/AGV-001/maintenance", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOperationalStatsEndpoint(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodGet, "/api/v1/stats/operational", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap core.StatsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, int64(42), snap.TotalMissions)
	assert.Equal(t, "single_collection", snap.StorageMode)
}

func TestClearStatsCacheEndpoint(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodDelete, "/api/v1/stats/cache", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "count")
}

func TestDashboardReset(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodPost, "/api/v1/dashboard/reset", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRetentionCleanupNoop(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodPost, "/api/v1/retention/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report core.CleanupReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Zero(t, report.MissionsDeleted)
}

func TestArchiveRejectsBadDate(t *testing.T) {
	router := testRouter(t)
	w := doRequest(router, http.MethodPost, "/api/v1/retention/archive?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
