// services/fleet/internal/core/repository.go
package core

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// WriteOutcome reports what the store did with one mission upsert.
type WriteOutcome struct {
	MissionID     string
	Inserted      bool // false means an existing mission was replaced
	PointsWritten int
}

// OperationalFacts is the raw result of the single multi-facet
// aggregation round trip.
type OperationalFacts struct {
	TotalMissions   int64   `gorm:"column:total_missions"`
	TotalDataPoints int64   `gorm:"column:total_data_points"`
	ActiveRobots    int64   `gorm:"column:active_robots"`
	RecentMissions  int64   `gorm:"column:recent_missions"`
	AvgStartBattery float64 `gorm:"column:avg_start_battery"`
	AvgEndBattery   float64 `gorm:"column:avg_end_battery"`
}

// DailyCounts holds same-day mission counts read from the store.
type DailyCounts struct {
	Completed int64 `gorm:"column:completed"`
	Active    int64 `gorm:"column:active"`
}

// HourCount is one group of the hourly bucketing query.
type HourCount struct {
	Hour  int   `gorm:"column:hour"`
	Count int64 `gorm:"column:count"`
}

// Repository defines the store capability the fleet core needs: insert,
// bulk insert, aggregation and index management.
type Repository interface {
	// Mission persistence
	UpsertMissionEmbedded(ctx context.Context, mission *Mission) (WriteOutcome, error)
	UpsertMissionNormalized(ctx context.Context, mission *Mission, points []DataPoint) (WriteOutcome, error)

	// Aggregation reads
	OperationalFacts(ctx context.Context, normalized bool, recentSince time.Time) (OperationalFacts, error)
	HourlyCounts(ctx context.Context, dayStart, dayEnd time.Time) ([]HourCount, error)
	DailyCounts(ctx context.Context, dayStart time.Time, now time.Time) (DailyCounts, error)

	// Retention
	CopyRangeToArchive(ctx context.Context, from, to time.Time, normalized bool) (int64, error)
	RecordArchive(ctx context.Context, rec *ArchiveRecord) error
	SuccessfulArchives(ctx context.Context) ([]ArchiveRecord, error)
	OldestMissionDate(ctx context.Context) (time.Time, bool, error)
	DeleteMissionsBefore(ctx context.Context, cutoff time.Time, normalized bool) (int64, error)

	// Schema
	EnsureIndexes(ctx context.Context, normalized bool) error
	Ping(ctx context.Context) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository wraps a gorm connection in the Repository interface.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) UpsertMissionEmbedded(ctx context.Context, mission *Mission) (WriteOutcome, error) {
	var existing Mission
	err := r.db.WithContext(ctx).
		Where("robot_id = ? AND mission_start_date = ?", mission.RobotID, mission.MissionStartDate).
		First(&existing).Error

	switch {
	case err == nil:
		mission.ID = existing.ID
		if err := r.db.WithContext(ctx).Save(mission).Error; err != nil {
			return WriteOutcome{}, err
		}
		return WriteOutcome{MissionID: mission.ID, Inserted: false}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.WithContext(ctx).Create(mission).Error; err != nil {
			return WriteOutcome{}, err
		}
		return WriteOutcome{MissionID: mission.ID, Inserted: true}, nil
	default:
		return WriteOutcome{}, err
	}
}

func (r *repository) UpsertMissionNormalized(ctx context.Context, mission *Mission, points []DataPoint) (WriteOutcome, error) {
	outcome := WriteOutcome{MissionID: mission.ID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Mission
		err := tx.Where("robot_id = ? AND mission_start_date = ?",
			mission.RobotID, mission.MissionStartDate).First(&existing).Error

		switch {
		case err == nil:
			mission.ID = existing.ID
			outcome.MissionID = existing.ID
			outcome.Inserted = false
			if err := tx.Save(mission).Error; err != nil {
				return err
			}
			// Replace semantics: existing samples for this mission are
			// discarded before the fresh batch goes in.
			if err := tx.Where("mission_id = ?", mission.ID).Delete(&DataPoint{}).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			outcome.Inserted = true
			if err := tx.Create(mission).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if len(points) == 0 {
			return nil
		}
		for i := range points {
			points[i].MissionID = mission.ID
			points[i].RobotID = mission.RobotID
		}
		if err := tx.CreateInBatches(points, 100).Error; err != nil {
			return err
		}
		outcome.PointsWritten = len(points)
		return nil
	})
	if err != nil {
		return WriteOutcome{}, err
	}
	return outcome, nil
}

const embeddedFactsQuery = `
SELECT
  (SELECT count(*) FROM robot_missions) AS total_missions,
  (SELECT coalesce(sum(jsonb_array_length(data_points)), 0) FROM robot_missions
     WHERE data_points IS NOT NULL) AS total_data_points,
  (SELECT count(DISTINCT robot_id) FROM robot_missions) AS active_robots,
  (SELECT count(*) FROM robot_missions WHERE mission_start_date >= ?) AS recent_missions,
  (SELECT coalesce(avg(mission_start_battery_state), 0) FROM robot_missions) AS avg_start_battery,
  (SELECT coalesce(avg(mission_end_battery_state), 0) FROM robot_missions) AS avg_end_battery
`

const normalizedFactsQuery = `
SELECT
  (SELECT count(*) FROM robot_missions) AS total_missions,
  (SELECT count(*) FROM robot_data_points) AS total_data_points,
  (SELECT count(DISTINCT robot_id) FROM robot_missions) AS active_robots,
  (SELECT count(*) FROM robot_missions WHERE mission_start_date >= ?) AS recent_missions,
  (SELECT coalesce(avg(mission_start_battery_state), 0) FROM robot_missions) AS avg_start_battery,
  (SELECT coalesce(avg(mission_end_battery_state), 0) FROM robot_missions) AS avg_end_battery
`

func (r *repository) OperationalFacts(ctx context.Context, normalized bool, recentSince time.Time) (OperationalFacts, error) {
	query := embeddedFactsQuery
	if normalized {
		query = normalizedFactsQuery
	}

	var facts OperationalFacts
	if err := r.db.WithContext(ctx).Raw(query, recentSince).Scan(&facts).Error; err != nil {
		return OperationalFacts{}, err
	}
	return facts, nil
}

func (r *repository) HourlyCounts(ctx context.Context, dayStart, dayEnd time.Time) ([]HourCount, error) {
	var counts []HourCount
	err := r.db.WithContext(ctx).Raw(`
		SELECT extract(hour FROM mission_start_date)::int AS hour, count(*) AS count
		FROM robot_missions
		WHERE mission_start_date >= ? AND mission_start_date < ?
		GROUP BY 1
		ORDER BY 1`, dayStart, dayEnd).Scan(&counts).Error
	return counts, err
}

func (r *repository) DailyCounts(ctx context.Context, dayStart time.Time, now time.Time) (DailyCounts, error) {
	var counts DailyCounts
	err := r.db.WithContext(ctx).Raw(`
		SELECT
		  count(*) FILTER (WHERE mission_end_date <= ?) AS completed,
		  count(*) FILTER (WHERE mission_end_date > ?) AS active
		FROM robot_missions
		WHERE mission_start_date >= ?`, now, now, dayStart).Scan(&counts).Error
	return counts, err
}

func (r *repository) CopyRangeToArchive(ctx context.Context, from, to time.Time, normalized bool) (int64, error) {
	var copied int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			INSERT INTO robot_missions_archive
			SELECT m.*, now() AS archived_at
			FROM robot_missions m
			WHERE m.mission_start_date >= ? AND m.mission_start_date < ?
			ON CONFLICT (id) DO NOTHING`, from, to)
		if res.Error != nil {
			return res.Error
		}
		copied = res.RowsAffected

		if normalized {
			if err := tx.Exec(`
				INSERT INTO robot_data_points_archive
				SELECT p.*, now() AS archived_at
				FROM robot_data_points p
				JOIN robot_missions m ON m.id = p.mission_id
				WHERE m.mission_start_date >= ? AND m.mission_start_date < ?
				ON CONFLICT (id) DO NOTHING`, from, to).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return copied, err
}

func (r *repository) RecordArchive(ctx context.Context, rec *ArchiveRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repository) SuccessfulArchives(ctx context.Context) ([]ArchiveRecord, error) {
	var records []ArchiveRecord
	err := r.db.WithContext(ctx).
		Where("success = ?", true).
		Order("range_start ASC").
		Find(&records).Error
	return records, err
}

func (r *repository) OldestMissionDate(ctx context.Context) (time.Time, bool, error) {
	var mission Mission
	err := r.db.WithContext(ctx).Order("mission_start_date ASC").First(&mission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return mission.MissionStartDate, true, nil
}

func (r *repository) DeleteMissionsBefore(ctx context.Context, cutoff time.Time, normalized bool) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if normalized {
			if err := tx.Exec(`
				DELETE FROM robot_data_points
				WHERE mission_id IN
				  (SELECT id FROM robot_missions WHERE mission_start_date < ?)`, cutoff).Error; err != nil {
				return err
			}
		}
		res := tx.Where("mission_start_date < ?", cutoff).Delete(&Mission{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func (r *repository) EnsureIndexes(ctx context.Context, normalized bool) error {
	db := r.db.WithContext(ctx)

	// The compound unique index and the time-range indexes are declared
	// on the models; AutoMigrate creates them.
	models := []interface{}{&Mission{}, &MissionArchive{}, &ArchiveRecord{}}
	if normalized {
		models = append(models, &DataPoint{}, &DataPointArchive{})
	}
	return db.AutoMigrate(models...)
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
