// services/fleet/internal/core/alerts.go
package core

import (
	"fmt"
	"sort"
	"time"

	"example.com/backstage/services/fleet/config"
)

// Evaluator derives alert conditions from the current robot snapshots.
// It is pure over its inputs: nothing is persisted, and every call
// recomputes from scratch.
type Evaluator struct {
	lowBattery      int
	criticalBattery int
	staleAfter      time.Duration
	maintGrace      time.Duration
	now             func() time.Time
}

// NewEvaluator builds an evaluator from the configured thresholds.
func NewEvaluator(cfg config.AlertConfig) *Evaluator {
	return &Evaluator{
		lowBattery:      cfg.LowBatteryThreshold,
		criticalBattery: cfg.CriticalBatteryThreshold,
		staleAfter:      cfg.ConnectionStaleAfter,
		maintGrace:      cfg.MaintenanceGrace,
		now:             time.Now,
	}
}

// Evaluate returns the alerts for the given fleet snapshot, ordered by
// descending severity then robot id.
func (e *Evaluator) Evaluate(robots []RobotState) []Alert {
	now := e.now()
	var alerts []Alert

	for _, r := range robots {
		if r.BatteryPercent < e.lowBattery {
			severity := SeverityWarning
			if r.BatteryPercent < e.criticalBattery {
				severity = SeverityCritical
			}
			alerts = append(alerts, Alert{
				RobotID:  r.RobotID,
				Type:     AlertLowBattery,
				Severity: severity,
				Value:    float64(r.BatteryPercent),
				Message:  fmt.Sprintf("battery at %d%%", r.BatteryPercent),
			})
		}

		// A stopped robot is expected to be silent.
		if r.Status != StatusStopped && !r.LastSeen.IsZero() {
			if staleness := now.Sub(r.LastSeen); staleness >= e.staleAfter {
				alerts = append(alerts, Alert{
					RobotID:  r.RobotID,
					Type:     AlertConnectionLost,
					Severity: SeverityCritical,
					Duration: staleness,
					Message:  fmt.Sprintf("no contact for %s", staleness.Round(time.Second)),
				})
			}
		}

		if r.Status == StatusMaintenance && r.MaintenanceSince != nil {
			if overrun := now.Sub(*r.MaintenanceSince) - e.maintGrace; overrun > 0 {
				alerts = append(alerts, Alert{
					RobotID:  r.RobotID,
					Type:     AlertMaintenanceNeeded,
					Severity: SeverityWarning,
					Duration: overrun,
					Message:  fmt.Sprintf("under maintenance %s past the grace period", overrun.Round(time.Second)),
				})
			}
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		si, sj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity)
		if si != sj {
			return si > sj
		}
		return alerts[i].RobotID < alerts[j].RobotID
	})
	return alerts
}

// Critical filters Evaluate down to critical alerts only.
func (e *Evaluator) Critical(robots []RobotState) []Alert {
	all := e.Evaluate(robots)
	critical := make([]Alert, 0, len(all))
	for _, a := range all {
		if a.Severity == SeverityCritical {
			critical = append(critical, a)
		}
	}
	return critical
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}
