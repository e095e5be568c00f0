// services/fleet/internal/core/retention.go
package core

import (
	"context"
	"fmt"
	"time"

	"example.com/backstage/services/fleet/config"
	"github.com/sirupsen/logrus"
)

// CounterResetter clears the same-day counters feeding the daily stats.
// Only the retention manager is permitted to call it.
type CounterResetter interface {
	ResetDailyCounters()
}

// ArchiveReport summarizes one archival run.
type ArchiveReport struct {
	RangeStart   time.Time `json:"range_start"`
	RangeEnd     time.Time `json:"range_end"`
	MissionCount int64     `json:"mission_count"`
	Success      bool      `json:"success"`
}

// CleanupReport summarizes one cleanup run.
type CleanupReport struct {
	Cutoff          time.Time  `json:"cutoff"`
	MissionsDeleted int64      `json:"missions_deleted"`
	AbortedAt       *time.Time `json:"aborted_at,omitempty"` // start of the unarchived range
}

// RetentionManager archives and prunes historical mission data on a
// time basis. Cleanup never touches a range without a successful
// archive record covering it.
type RetentionManager struct {
	repo       Repository
	counters   CounterResetter
	normalized bool
	maxAgeDays int
	archiveHr  int
	events     []EventPublisher
	logger     *logrus.Logger
	now        func() time.Time

	lastArchivedDay time.Time
}

// NewRetentionManager builds the retention layer.
func NewRetentionManager(repo Repository, counters CounterResetter, cfg config.RetentionConfig,
	normalized bool, logger *logrus.Logger, events ...EventPublisher) *RetentionManager {

	ps := make([]EventPublisher, 0, len(events))
	for _, e := range events {
		if e != nil {
			ps = append(ps, e)
		}
	}
	return &RetentionManager{
		repo:       repo,
		counters:   counters,
		normalized: normalized,
		maxAgeDays: cfg.MaxAgeDays,
		archiveHr:  cfg.ArchiveHour,
		events:     ps,
		logger:     logger,
		now:        time.Now,
	}
}

// ArchiveDaily copies the given day's missions into the archive store
// and, on success, resets the same-day counters used by the daily
// stats. day is truncated to its midnight boundary.
func (m *RetentionManager) ArchiveDaily(ctx context.Context, day time.Time) (ArchiveReport, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.Add(24 * time.Hour)

	copied, err := m.repo.CopyRangeToArchive(ctx, from, to, m.normalized)
	rec := &ArchiveRecord{
		RangeStart:   from,
		RangeEnd:     to,
		MissionCount: copied,
		Success:      err == nil,
		ArchivedAt:   m.now(),
	}
	if err != nil {
		rec.Detail = err.Error()
	}

	if recErr := m.repo.RecordArchive(ctx, rec); recErr != nil {
		m.logger.WithError(recErr).Error("Failed to record archive run")
	}

	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"range_start": from,
			"range_end":   to,
		}).Error("Daily archive failed")
		return ArchiveReport{RangeStart: from, RangeEnd: to}, fmt.Errorf("archive %s: %w",
			from.Format("2006-01-02"), err)
	}

	if m.counters != nil {
		m.counters.ResetDailyCounters()
	}

	report := ArchiveReport{RangeStart: from, RangeEnd: to, MissionCount: copied, Success: true}
	m.logger.WithFields(logrus.Fields{
		"range_start": from,
		"missions":    copied,
	}).Info("Daily archive completed")

	m.publish(ctx, "retention/archived", report)
	return report, nil
}

// CleanupOldData deletes missions (and their data points) older than
// maxAgeDays, but only for days covered by a successful archive record.
// On an uncovered day it aborts and reports which range blocked it.
func (m *RetentionManager) CleanupOldData(ctx context.Context, maxAgeDays int) (CleanupReport, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = m.maxAgeDays
	}

	now := m.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -maxAgeDays)

	oldest, found, err := m.repo.OldestMissionDate(ctx)
	if err != nil {
		return CleanupReport{Cutoff: cutoff}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found || !oldest.Before(cutoff) {
		return CleanupReport{Cutoff: cutoff}, nil
	}

	archives, err := m.repo.SuccessfulArchives(ctx)
	if err != nil {
		return CleanupReport{Cutoff: cutoff}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Every day in [oldest, cutoff) must be covered before anything is
	// deleted.
	day := time.Date(oldest.Year(), oldest.Month(), oldest.Day(), 0, 0, 0, 0, oldest.Location())
	for day.Before(cutoff) {
		if !covered(archives, day) {
			aborted := day
			m.logger.WithField("range_start", aborted).
				Warn("Cleanup aborted: day not archived")
			return CleanupReport{Cutoff: cutoff, AbortedAt: &aborted},
				fmt.Errorf("%w: %s", ErrRangeNotArchived, aborted.Format("2006-01-02"))
		}
		day = day.AddDate(0, 0, 1)
	}

	deleted, err := m.repo.DeleteMissionsBefore(ctx, cutoff, m.normalized)
	if err != nil {
		return CleanupReport{Cutoff: cutoff}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	m.logger.WithFields(logrus.Fields{
		"cutoff":   cutoff,
		"missions": deleted,
	}).Info("Old mission data cleaned up")

	return CleanupReport{Cutoff: cutoff, MissionsDeleted: deleted}, nil
}

// Tick runs the daily jobs when the configured boundary has passed.
// Called from the low-frequency background driver.
func (m *RetentionManager) Tick(ctx context.Context) {
	now := m.now()
	if now.Hour() < m.archiveHr {
		return
	}

	yesterday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -1)
	if !m.lastArchivedDay.Before(yesterday) {
		return
	}

	if _, err := m.ArchiveDaily(ctx, yesterday); err != nil {
		// Retried on the next tick; the failed range is already logged.
		return
	}
	m.lastArchivedDay = yesterday

	if _, err := m.CleanupOldData(ctx, m.maxAgeDays); err != nil {
		m.logger.WithError(err).Warn("Scheduled cleanup did not complete")
	}
}

func (m *RetentionManager) publish(ctx context.Context, topic string, payload interface{}) {
	for _, pub := range m.events {
		if err := pub.Publish(ctx, topic, payload); err != nil {
			m.logger.WithError(err).Debug("Failed to publish retention event")
		}
	}
}

func covered(archives []ArchiveRecord, day time.Time) bool {
	dayEnd := day.AddDate(0, 0, 1)
	for _, a := range archives {
		if !a.RangeStart.After(day) && !a.RangeEnd.Before(dayEnd) {
			return true
		}
	}
	return false
}
