package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"example.com/backstage/services/fleet/config"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Simulation: config.SimulationConfig{
			RobotCount:         3,
			DataPointsMin:      3,
			DataPointsMax:      6,
			MissionDurationMin: 4,
			MissionDurationMax: 10,
			TimeGridMinutes:    10,
			RandomSeed:         42,
		},
		Scheduling: config.SchedulingConfig{MissionIntervalMinutes: 10},
		Sensors: config.SensorRanges{
			PosX:              []int{0, 50000},
			PosY:              []int{0, 30000},
			Theta:             []int{0, 360},
			LocalizationScore: []float64{85, 100},
			TiltX:             []float64{-5, 5},
			TiltY:             []float64{-5, 5},
			NH3:               []float64{0, 25},
			H2S:               []float64{0, 10},
			VOCs:              []float64{0, 3},
			F2:                []float64{0, 1},
			HF:                []float64{0, 3},
			Temperature:       []float64{18, 28},
			Humidity:          []float64{30, 70},
			Illuminance:       []float64{150, 1200},
			Noise:             []float64{40, 80},
		},
		Battery: config.BatteryConfig{StartMin: 60, StartMax: 100, DrainMin: 5, DrainMax: 15},
		Locations: config.LocationConfig{
			Sites:  []string{"A", "B", "C"},
			Lines:  []string{"L1", "L2", "L3"},
			Floors: []string{"1F", "2F", "4F"},
			Area:   "FAB",
		},
		Stats: config.StatsConfig{
			CacheTTL:     5 * time.Second,
			HourlyTarget: 6,
			QueryTimeout: time.Second,
		},
		Alerts: config.AlertConfig{
			LowBatteryThreshold:      25,
			CriticalBatteryThreshold: 15,
			ConnectionStaleAfter:     time.Hour,
			MaintenanceGrace:         30 * time.Minute,
		},
		Retention: config.RetentionConfig{Enabled: true, MaxAgeDays: 30, ArchiveHour: 0},
	}
}

// mockRepository is an in-memory Repository for exercising the layers
// above the store.
type mockRepository struct {
	mu sync.Mutex

	missions map[string]*Mission // keyed by robot id + start time
	points   map[string][]DataPoint

	writeErr error
	pingErr  error

	facts      OperationalFacts
	factsErr   error
	factsCalls int

	hourly    []HourCount
	hourlyErr error

	daily    DailyCounts
	dailyErr error

	copied  int64
	copyErr error

	archiveRecords []ArchiveRecord

	oldest    time.Time
	hasOldest bool

	deleteCalled bool
	deleted      int64
	deleteErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		missions: make(map[string]*Mission),
		points:   make(map[string][]DataPoint),
	}
}

func missionKey(robotID string, start time.Time) string {
	return robotID + "|" + start.UTC().Format(time.RFC3339Nano)
}

func (m *mockRepository) UpsertMissionEmbedded(ctx context.Context, mission *Mission) (WriteOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return WriteOutcome{}, m.writeErr
	}

	key := missionKey(mission.RobotID, mission.MissionStartDate)
	_, exists := m.missions[key]
	if exists {
		mission.ID = m.missions[key].ID
	}
	stored := *mission
	m.missions[key] = &stored
	return WriteOutcome{MissionID: mission.ID, Inserted: !exists}, nil
}

func (m *mockRepository) UpsertMissionNormalized(ctx context.Context, mission *Mission, points []DataPoint) (WriteOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return WriteOutcome{}, m.writeErr
	}

	key := missionKey(mission.RobotID, mission.MissionStartDate)
	_, exists := m.missions[key]
	if exists {
		mission.ID = m.missions[key].ID
	}
	stored := *mission
	m.missions[key] = &stored
	m.points[mission.ID] = append([]DataPoint{}, points...)
	return WriteOutcome{MissionID: mission.ID, Inserted: !exists, PointsWritten: len(points)}, nil
}

func (m *mockRepository) OperationalFacts(ctx context.Context, normalized bool, recentSince time.Time) (OperationalFacts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factsCalls++
	if m.factsErr != nil {
		return OperationalFacts{}, m.factsErr
	}
	return m.facts, nil
}

func (m *mockRepository) HourlyCounts(ctx context.Context, dayStart, dayEnd time.Time) ([]HourCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hourly, m.hourlyErr
}

func (m *mockRepository) DailyCounts(ctx context.Context, dayStart time.Time, now time.Time) (DailyCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daily, m.dailyErr
}

func (m *mockRepository) CopyRangeToArchive(ctx context.Context, from, to time.Time, normalized bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return 0, m.copyErr
	}
	return m.copied, nil
}

func (m *mockRepository) RecordArchive(ctx context.Context, rec *ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveRecords = append(m.archiveRecords, *rec)
	return nil
}

func (m *mockRepository) SuccessfulArchives(ctx context.Context) ([]ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ArchiveRecord
	for _, rec := range m.archiveRecords {
		if rec.Success {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRepository) OldestMissionDate(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oldest, m.hasOldest, nil
}

func (m *mockRepository) DeleteMissionsBefore(ctx context.Context, cutoff time.Time, normalized bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalled = true
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return m.deleted, nil
}

func (m *mockRepository) EnsureIndexes(ctx context.Context, normalized bool) error { return nil }

func (m *mockRepository) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *mockRepository) missionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.missions)
}

func (m *mockRepository) recordedArchives() []ArchiveRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ArchiveRecord{}, m.archiveRecords...)
}

var errStoreDown = errors.New("store down")
