// services/fleet/internal/core/stats.go
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"example.com/backstage/services/fleet/internal/infrastructure"
	"github.com/sirupsen/logrus"
)

const statsCacheKey = "fleet:stats:operational"

// FailureSource reports in-memory cycle failures that never reach the
// store (failed cycles write no mission).
type FailureSource interface {
	FailedCyclesToday() int64
}

// SnapshotCache is the slice of the shared cache the aggregator uses
// to mirror snapshots for external dashboards and to recover the last
// one after a restart.
type SnapshotCache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

var _ SnapshotCache = (*infrastructure.Cache)(nil)

// Aggregator computes operational metrics from persisted data, cached
// with a short TTL. Readers observe either the previous or the freshly
// committed snapshot, never a partial one.
type Aggregator struct {
	repo         Repository
	cache        SnapshotCache
	failures     FailureSource
	normalized   bool
	ttl          time.Duration
	hourlyTarget int64
	queryTimeout time.Duration

	refreshMu sync.Mutex
	snap      atomic.Pointer[StatsSnapshot]

	logger *logrus.Logger
	now    func() time.Time
}

// NewAggregator builds the stats layer. cache may be nil.
func NewAggregator(repo Repository, cache SnapshotCache, failures FailureSource,
	normalized bool, ttl time.Duration, hourlyTarget int, queryTimeout time.Duration,
	logger *logrus.Logger) *Aggregator {

	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Aggregator{
		repo:         repo,
		cache:        cache,
		failures:     failures,
		normalized:   normalized,
		ttl:          ttl,
		hourlyTarget: int64(hourlyTarget),
		queryTimeout: queryTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// GetStats returns the current snapshot, refreshing it when the TTL has
// expired. On a failed refresh the last known-good snapshot is served
// annotated as stale.
func (a *Aggregator) GetStats(ctx context.Context) (StatsSnapshot, error) {
	if snap := a.snap.Load(); snap != nil && a.now().Sub(snap.ComputedAt) < a.ttl {
		return *snap, nil
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if snap := a.snap.Load(); snap != nil && a.now().Sub(snap.ComputedAt) < a.ttl {
		return *snap, nil
	}

	fresh, err := a.compute(ctx)
	if err != nil {
		if last := a.snap.Load(); last != nil {
			stale := *last
			stale.Stale = true
			a.logger.WithError(err).Warn("Stats refresh failed, serving stale snapshot")
			return stale, nil
		}
		// No snapshot yet in this process (e.g. right after a restart):
		// fall back to the last mirrored copy before giving up.
		if snap, ok := a.mirrored(ctx); ok {
			snap.Stale = true
			a.logger.WithError(err).Warn("Stats refresh failed, serving mirrored snapshot")
			return *snap, nil
		}
		return StatsSnapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	a.snap.Store(fresh)
	a.mirror(ctx, fresh)
	return *fresh, nil
}

func (a *Aggregator) compute(ctx context.Context) (*StatsSnapshot, error) {
	qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	started := a.now()
	facts, err := a.repo.OperationalFacts(qctx, a.normalized, started.Add(-time.Hour))
	if err != nil {
		return nil, err
	}

	mode := "single_collection"
	if a.normalized {
		mode = "normalized"
	}

	return &StatsSnapshot{
		TotalMissions:   facts.TotalMissions,
		TotalDataPoints: facts.TotalDataPoints,
		ActiveRobots:    facts.ActiveRobots,
		RecentMissions:  facts.RecentMissions,
		AvgStartBattery: facts.AvgStartBattery,
		AvgEndBattery:   facts.AvgEndBattery,
		StorageMode:     mode,
		QueryLatency:    a.now().Sub(started),
		ComputedAt:      started,
	}, nil
}

// mirror pushes the snapshot into Redis for external dashboards.
// Best effort; the in-process snapshot is authoritative.
func (a *Aggregator) mirror(ctx context.Context, snap *StatsSnapshot) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, statsCacheKey, string(data), a.ttl); err != nil {
		a.logger.WithError(err).Debug("Failed to mirror stats snapshot to cache")
	}
}

// mirrored recovers the last snapshot pushed to the shared cache.
func (a *Aggregator) mirrored(ctx context.Context) (*StatsSnapshot, bool) {
	if a.cache == nil {
		return nil, false
	}
	data, err := a.cache.Get(ctx, statsCacheKey)
	if err != nil {
		return nil, false
	}
	var snap StatsSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

// ClearCache drops the local snapshot and the Redis mirror, forcing the
// next read to recompute.
func (a *Aggregator) ClearCache(ctx context.Context) {
	a.snap.Store(nil)
	if a.cache != nil {
		if err := a.cache.Delete(ctx, statsCacheKey); err != nil {
			a.logger.WithError(err).Debug("Failed to clear cached stats snapshot")
		}
	}
	a.logger.Info("Stats cache cleared")
}

// GetHourlyPerformance buckets today's missions by start hour and
// compares each bucket against the configured per-hour target.
func (a *Aggregator) GetHourlyPerformance(ctx context.Context) ([]HourlyBucket, error) {
	qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	now := a.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	counts, err := a.repo.HourlyCounts(qctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	byHour := make(map[int]int64, len(counts))
	for _, c := range counts {
		byHour[c.Hour] = c.Count
	}

	buckets := make([]HourlyBucket, 0, 24)
	for h := 0; h < 24; h++ {
		buckets = append(buckets, HourlyBucket{
			HourRange:   fmt.Sprintf("%02d:00-%02d:00", h, (h+1)%24),
			ActualCount: byHour[h],
			TargetCount: a.hourlyTarget,
		})
	}
	return buckets, nil
}

// GetDailyStats reports same-day completed/active/failed mission counts
// and the success rate. With nothing completed and nothing failed the
// rate is 100%.
func (a *Aggregator) GetDailyStats(ctx context.Context) (DailyStats, error) {
	qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	now := a.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	counts, err := a.repo.DailyCounts(qctx, dayStart, now)
	if err != nil {
		return DailyStats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var failed int64
	if a.failures != nil {
		failed = a.failures.FailedCyclesToday()
	}

	rate := 100.0
	if denom := counts.Completed + failed; denom > 0 {
		rate = float64(counts.Completed) / float64(denom) * 100
	}

	return DailyStats{
		Date:              dayStart,
		CompletedMissions: counts.Completed,
		ActiveMissions:    counts.Active,
		FailedMissions:    failed,
		SuccessRate:       rate,
	}, nil
}
