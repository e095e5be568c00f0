// services/fleet/internal/core/models.go
package core

import (
	"encoding/json"
	"time"
)

// RobotStatus is the closed set of robot lifecycle states.
type RobotStatus string

const (
	StatusRunning     RobotStatus = "running"
	StatusIdle        RobotStatus = "idle"
	StatusStopped     RobotStatus = "stopped"
	StatusError       RobotStatus = "error"
	StatusMaintenance RobotStatus = "maintenance"
)

// Valid reports whether s is one of the known statuses.
func (s RobotStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusIdle, StatusStopped, StatusError, StatusMaintenance:
		return true
	}
	return false
}

// RobotState is a point-in-time snapshot of one robot. Copies of it are
// handed out by the manager; the live state never leaves the registry.
type RobotState struct {
	RobotID          string      `json:"robot_id"`
	Status           RobotStatus `json:"status"`
	BatteryPercent   int         `json:"battery_percent"`
	LastSeen         time.Time   `json:"last_seen"`
	ErrorDetail      string      `json:"error_detail,omitempty"`
	MissionsToday    int         `json:"missions_today"`
	DataPointsToday  int         `json:"data_points_today"`
	FailedToday      int         `json:"failed_today"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	LastMissionAt    *time.Time  `json:"last_mission_at,omitempty"`
	MaintenanceSince *time.Time  `json:"maintenance_since,omitempty"`
	TotalRuntimeSec  float64     `json:"total_runtime_sec"`
}

// Location identifies where a mission ran.
type Location struct {
	Site  string `json:"site" gorm:"column:location_site"`
	Line  string `json:"line" gorm:"column:location_line"`
	Floor string `json:"floor" gorm:"column:location_floor"`
	Area  string `json:"area" gorm:"column:location_area"`
}

// Mission is one completed robot work cycle. Immutable once written.
type Mission struct {
	ID               string    `json:"mission_id" gorm:"primaryKey"`
	RobotID          string    `json:"robot_id" gorm:"uniqueIndex:idx_robot_mission_start;index;not null"`
	MissionStartDate time.Time `json:"mission_start_date" gorm:"uniqueIndex:idx_robot_mission_start;index;not null"`
	MissionEndDate   time.Time `json:"mission_end_date" gorm:"not null"`
	StartBattery     int       `json:"mission_start_battery_state" gorm:"column:mission_start_battery_state"`
	EndBattery       int       `json:"mission_end_battery_state" gorm:"column:mission_end_battery_state"`
	RouteName        string    `json:"route_name"`
	Location         Location  `json:"location" gorm:"embedded"`
	// DataPoints is populated only in the embedded (single-collection) layout.
	DataPoints  json.RawMessage `json:"data_points,omitempty" gorm:"type:jsonb"`
	SimulatedAt time.Time       `json:"simulated_at"`
}

// DataPoint is one timestamped sensor sample belonging to a mission.
// In the normalized layout each sample is its own row; in the embedded
// layout the samples are marshalled into the mission's jsonb column.
type DataPoint struct {
	ID                uint      `json:"-" gorm:"primaryKey"`
	MissionID         string    `json:"mission_id,omitempty" gorm:"uniqueIndex:idx_mission_timestamp;index"`
	RobotID           string    `json:"robot_id,omitempty" gorm:"index:idx_robot_timestamp"`
	Timestamp         time.Time `json:"timestamp" gorm:"uniqueIndex:idx_mission_timestamp;index:idx_robot_timestamp;index"`
	UnixTime          float64   `json:"unix_time"`
	PosX              int       `json:"pos_x"`
	PosY              int       `json:"pos_y"`
	Theta             int       `json:"theta"`
	LocalizationScore float64   `json:"localization_score"`
	TiltX             float64   `json:"tilt_x"`
	TiltY             float64   `json:"tilt_y"`
	NH3               float64   `json:"nh3"`
	H2S               float64   `json:"h2s"`
	VOCs              float64   `json:"vocs"`
	F2                float64   `json:"f2"`
	HF                float64   `json:"hf"`
	Temperature       float64   `json:"temperature"`
	Humidity          float64   `json:"humidity"`
	Illuminance       float64   `json:"illuminance"`
	Noise             float64   `json:"noise"`
	PillarNumber      string    `json:"pillar_number"`
	BayNumber         string    `json:"bay_number"`
	ShotNumber        string    `json:"shot_number"`
}

// MissionArchive mirrors Mission for the archive table. Field order
// matches Mission so the archival insert-select lines up column for
// column; the indexes are deliberately not carried over.
type MissionArchive struct {
	ID               string          `json:"mission_id" gorm:"primaryKey"`
	RobotID          string          `json:"robot_id" gorm:"index:idx_archive_robot"`
	MissionStartDate time.Time       `json:"mission_start_date" gorm:"index:idx_archive_mission_start"`
	MissionEndDate   time.Time       `json:"mission_end_date"`
	StartBattery     int             `json:"mission_start_battery_state" gorm:"column:mission_start_battery_state"`
	EndBattery       int             `json:"mission_end_battery_state" gorm:"column:mission_end_battery_state"`
	RouteName        string          `json:"route_name"`
	Location         Location        `json:"location" gorm:"embedded"`
	DataPoints       json.RawMessage `json:"data_points,omitempty" gorm:"type:jsonb"`
	SimulatedAt      time.Time       `json:"simulated_at"`
	ArchivedAt       time.Time       `json:"archived_at"`
}

// DataPointArchive mirrors DataPoint for the archive table.
type DataPointArchive struct {
	ID                uint      `json:"-" gorm:"primaryKey"`
	MissionID         string    `json:"mission_id" gorm:"index:idx_archive_point_mission"`
	RobotID           string    `json:"robot_id"`
	Timestamp         time.Time `json:"timestamp" gorm:"index:idx_archive_point_timestamp"`
	UnixTime          float64   `json:"unix_time"`
	PosX              int       `json:"pos_x"`
	PosY              int       `json:"pos_y"`
	Theta             int       `json:"theta"`
	LocalizationScore float64   `json:"localization_score"`
	TiltX             float64   `json:"tilt_x"`
	TiltY             float64   `json:"tilt_y"`
	NH3               float64   `json:"nh3"`
	H2S               float64   `json:"h2s"`
	VOCs              float64   `json:"vocs"`
	F2                float64   `json:"f2"`
	HF                float64   `json:"hf"`
	Temperature       float64   `json:"temperature"`
	Humidity          float64   `json:"humidity"`
	Illuminance       float64   `json:"illuminance"`
	Noise             float64   `json:"noise"`
	PillarNumber      string    `json:"pillar_number"`
	BayNumber         string    `json:"bay_number"`
	ShotNumber        string    `json:"shot_number"`
	ArchivedAt        time.Time `json:"archived_at"`
}

// ArchiveRecord tracks one archival run over a date range. Cleanup only
// ever deletes data covered by a successful record.
type ArchiveRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	RangeStart   time.Time `json:"range_start" gorm:"index;not null"`
	RangeEnd     time.Time `json:"range_end" gorm:"index;not null"`
	MissionCount int64     `json:"mission_count"`
	Success      bool      `json:"success" gorm:"index"`
	Detail       string    `json:"detail,omitempty"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// TableName overrides for GORM
func (Mission) TableName() string          { return "robot_missions" }
func (DataPoint) TableName() string        { return "robot_data_points" }
func (MissionArchive) TableName() string   { return "robot_missions_archive" }
func (DataPointArchive) TableName() string { return "robot_data_points_archive" }
func (ArchiveRecord) TableName() string    { return "archive_records" }

// CycleResult carries everything one completed cycle produced, ready for
// the writer to persist.
type CycleResult struct {
	RobotID      string      `json:"robot_id"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	StartBattery int         `json:"start_battery"`
	EndBattery   int         `json:"end_battery"`
	RouteName    string      `json:"route_name"`
	Location     Location    `json:"location"`
	DataPoints   []DataPoint `json:"data_points"`
}

// WriteResult reports the outcome of persisting one cycle. Persistence
// failures are carried in the result rather than returned as errors so
// the cycle loop can degrade the robot instead of crashing.
type WriteResult struct {
	Success           bool          `json:"success"`
	MissionID         string        `json:"mission_id,omitempty"`
	DataPointsWritten int           `json:"data_points_written"`
	Operation         string        `json:"operation"` // "insert" or "update"
	Duration          time.Duration `json:"duration"`
	Error             string        `json:"error,omitempty"`
}

// StatsSnapshot is one cached aggregation result.
type StatsSnapshot struct {
	TotalMissions     int64         `json:"total_missions"`
	TotalDataPoints   int64         `json:"total_data_points"`
	ActiveRobots      int64         `json:"active_robots"`
	RecentMissions    int64         `json:"recent_missions"` // rolling last hour
	AvgStartBattery   float64       `json:"avg_start_battery"`
	AvgEndBattery     float64       `json:"avg_end_battery"`
	StorageMode       string        `json:"storage_mode"`
	QueryLatency      time.Duration `json:"query_latency"`
	ComputedAt        time.Time     `json:"computed_at"`
	Stale             bool          `json:"stale"`
}

// HourlyBucket compares actual mission throughput to the per-hour target.
type HourlyBucket struct {
	HourRange   string `json:"hour_range"` // e.g. "09:00-10:00"
	ActualCount int64  `json:"actual_count"`
	TargetCount int64  `json:"target_count"`
}

// DailyStats reports same-day mission outcomes.
type DailyStats struct {
	Date              time.Time `json:"date"`
	CompletedMissions int64     `json:"completed_missions"`
	ActiveMissions    int64     `json:"active_missions"`
	FailedMissions    int64     `json:"failed_missions"`
	SuccessRate       float64   `json:"success_rate"` // percent
}

// AlertType is the closed set of alert conditions.
type AlertType string

const (
	AlertLowBattery        AlertType = "low_battery"
	AlertConnectionLost    AlertType = "connection_lost"
	AlertMaintenanceNeeded AlertType = "maintenance_needed"
)

// AlertSeverity orders alerts for dashboards.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
)

// Alert is derived on demand from robot state; it is never persisted.
type Alert struct {
	RobotID  string        `json:"robot_id"`
	Type     AlertType     `json:"type"`
	Severity AlertSeverity `json:"severity"`
	Value    float64       `json:"value,omitempty"`    // battery percent for low_battery
	Duration time.Duration `json:"duration,omitempty"` // staleness / grace overrun
	Message  string        `json:"message"`
}
