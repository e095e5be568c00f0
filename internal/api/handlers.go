package api

import (
	"errors"
	"net/http"
	"time"

	"example.com/backstage/services/fleet/internal/core"
	"github.com/gin-gonic/gin"
)

// APIHandlers holds all HTTP handlers
type APIHandlers struct {
	services *core.ServiceRegistry
}

// NewAPIHandlers creates a new handler instance
func NewAPIHandlers(services *core.ServiceRegistry) *APIHandlers {
	return &APIHandlers{services: services}
}

// HealthCheck returns service health status
func (h *APIHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "fleet-simulator-api",
	})
}

func robotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownRobot):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Robot Lifecycle Endpoints ---

// ListRobots returns the state of every registered robot
func (h *APIHandlers) ListRobots(c *gin.Context) {
	robots := h.services.Manager.ListStatus()
	c.JSON(http.StatusOK, gin.H{
		"robots": robots,
		"count":  len(robots),
	})
}

// GetRobotStatus returns one robot's state and its process flow progress
func (h *APIHandlers) GetRobotStatus(c *gin.Context) {
	state, flow, err := h.services.Manager.GetStatus(c.Param("id"))
	if err != nil {
		robotError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"robot":        state,
		"process_flow": flow,
	})
}

// StartRobot transitions a robot to running
func (h *APIHandlers) StartRobot(c *gin.Context) {
	state, err := h.services.Manager.Start(c.Param("id"))
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StopRobot transitions a robot to stopped
func (h *APIHandlers) StopRobot(c *gin.Context) {
	state, err := h.services.Manager.Stop(c.Param("id"))
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ResetRobot returns a robot's process flow to the init stage
func (h *APIHandlers) ResetRobot(c *gin.Context) {
	state, err := h.services.Manager.Reset(c.Param("id"))
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// SetMaintenance toggles a robot's maintenance mode
func (h *APIHandlers) SetMaintenance(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	state, err := h.services.Manager.SetMaintenance(c.Param("id"), *req.Enabled)
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StartAllRobots starts every robot not already running
func (h *APIHandlers) StartAllRobots(c *gin.Context) {
	started := h.services.Manager.StartAll()
	c.JSON(http.StatusOK, gin.H{"started": started})
}

// StopAllRobots stops every running robot
func (h *APIHandlers) StopAllRobots(c *gin.Context) {
	stopped := h.services.Manager.StopAll()
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

// --- Stats Endpoints ---

// GetOperationalStats returns the cached operational snapshot
func (h *APIHandlers) GetOperationalStats(c *gin.Context) {
	snap, err := h.services.Stats.GetStats(c.Request.Context())
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetDailyStats returns same-day mission counts and the success rate
func (h *APIHandlers) GetDailyStats(c *gin.Context) {
	stats, err := h.services.Stats.GetDailyStats(c.Request.Context())
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetHourlyPerformance returns today's per-hour mission counts against target
func (h *APIHandlers) GetHourlyPerformance(c *gin.Context) {
	buckets, err := h.services.Stats.GetHourlyPerformance(c.Request.Context())
	if err != nil {
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hours": buckets})
}

// ClearStatsCache forces the next stats read to recompute
func (h *APIHandlers) ClearStatsCache(c *gin.Context) {
	h.services.Stats.ClearCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "stats cache cleared"})
}

// --- Alert Endpoints ---

// GetAlerts returns all current alerts for the fleet
func (h *APIHandlers) GetAlerts(c *gin.Context) {
	alerts := h.services.Alerts.Evaluate(h.services.Manager.ListStatus())
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetCriticalAlerts returns critical alerts only
func (h *APIHandlers) GetCriticalAlerts(c *gin.Context) {
	alerts := h.services.Alerts.Critical(h.services.Manager.ListStatus())
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// --- Dashboard Endpoints ---

// ResetDashboard resets every robot's process flow and clears the stats
// cache. Robot statuses and mission history are untouched.
func (h *APIHandlers) ResetDashboard(c *gin.Context) {
	h.services.Manager.ResetAllFlows()
	h.services.Stats.ClearCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "dashboard reset"})
}

// --- Retention Endpoints ---

// TriggerArchive archives one day's missions on demand. Defaults to
// yesterday when no date is given.
func (h *APIHandlers) TriggerArchive(c *gin.Context) {
	day := time.Now().AddDate(0, 0, -1)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	report, err := h.services.Retention.ArchiveDaily(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// TriggerCleanup prunes archived missions older than the retention window
func (h *APIHandlers) TriggerCleanup(c *gin.Context) {
	report, err := h.services.Retention.CleanupOldData(c.Request.Context(), 0)
	if err != nil {
		if errors.Is(err, core.ErrRangeNotArchived) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "report": report})
			return
		}
		robotError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
