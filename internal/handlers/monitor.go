package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/schedule"
	"github.com/monocle-dev/crons/internal/types"
	"github.com/monocle-dev/crons/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateMonitorRequest struct {
	Name   string              `json:"name" binding:"required"`
	Config types.MonitorConfig `json:"config"`
}

type UpdateMonitorRequest struct {
	Name   string               `json:"name"`
	Status types.MonitorStatus  `json:"status"`
	Config *types.MonitorConfig `json:"config"`
}

type MonitorResponse struct {
	ID          string              `json:"id"`
	ProjectID   uint                `json:"project_id"`
	Name        string              `json:"name"`
	Status      types.MonitorStatus `json:"status"`
	Config      types.MonitorConfig `json:"config"`
	LastCheckin *time.Time          `json:"last_checkin"`
	NextCheckin *time.Time          `json:"next_checkin"`
	LastCheckIn *CheckInResponse    `json:"latest_checkin"`
}

type DashboardResponse struct {
	Project         ProjectSummary    `json:"project"`
	MonitorsSummary MonitorsSummary   `json:"monitors_summary"`
	Monitors        []MonitorResponse `json:"monitors"`
	RecentFailures  []FailureSummary  `json:"recent_failures"`
}

type ProjectSummary struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type MonitorsSummary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Error    int `json:"error"`
	Pending  int `json:"pending"`
	Disabled int `json:"disabled"`
}

type FailureSummary struct {
	MonitorID   string          `json:"monitor_id"`
	MonitorName string          `json:"monitor_name"`
	CheckIn     CheckInResponse `json:"checkin"`
}

const recentFailureWindow = 7 * 24 * time.Hour

// monitorFromRequest resolves :monitor_id for the current user.
func monitorFromRequest(ctx *gin.Context) (models.Monitor, bool) {
	principal, err := utils.GetPrincipal(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return models.Monitor{}, false
	}

	guid, err := utils.GetMonitorGUID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.Monitor{}, false
	}

	monitor, err := findMonitor(principal, guid)

	if err != nil {
		respondLookupError(ctx, err, "Monitor")
		return models.Monitor{}, false
	}

	return monitor, true
}

func projectFromRequest(ctx *gin.Context) (models.Project, bool) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return models.Project{}, false
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.Project{}, false
	}

	project, err := findProject(userID, projectID)

	if err != nil {
		respondLookupError(ctx, err, "Project")
		return models.Project{}, false
	}

	return project, true
}

func CreateMonitor(ctx *gin.Context) {
	var req CreateMonitorRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, ok := projectFromRequest(ctx)

	if !ok {
		return
	}

	sched, err := schedule.Parse(req.Config)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule: " + err.Error()})
		return
	}

	configJSON, err := json.Marshal(req.Config)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config format"})
		return
	}

	// The first deadline is counted from creation, so a job that never
	// reports is still caught as missed.
	next := sched.Next(checkins.Now())

	monitor := models.Monitor{
		GUID:        uuid.New(),
		ProjectID:   project.ID,
		Name:        req.Name,
		Status:      types.MonitorStatusActive,
		Config:      configJSON,
		NextCheckin: &next,
	}

	if err := db.DB.Create(&monitor).Error; err != nil {
		zap.L().Error("Failed to create monitor", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create monitor"})
		return
	}

	ctx.JSON(http.StatusCreated, newMonitorResponse(monitor, nil))
}

func GetMonitors(ctx *gin.Context) {
	project, ok := projectFromRequest(ctx)

	if !ok {
		return
	}

	responses, err := listMonitorResponses(project.ID)

	if err != nil {
		zap.L().Error("Failed to list monitors", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve monitors"})
		return
	}

	ctx.JSON(http.StatusOK, responses)
}

func GetMonitor(ctx *gin.Context) {
	monitor, ok := monitorFromRequest(ctx)

	if !ok {
		return
	}

	latest, err := latestCheckIn(monitor.ID)

	if err != nil {
		zap.L().Error("Failed to fetch latest check-in", zap.Uint("monitor_id", monitor.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve monitor"})
		return
	}

	ctx.JSON(http.StatusOK, newMonitorResponse(monitor, latest))
}

// UpdateMonitor renames a monitor, replaces its schedule, or toggles it
// between active and disabled. A new schedule or re-enabling resets the
// next deadline.
func UpdateMonitor(ctx *gin.Context) {
	var req UpdateMonitorRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	monitor, ok := monitorFromRequest(ctx)

	if !ok {
		return
	}

	updates := make(map[string]interface{})
	reschedule := false

	if req.Name != "" {
		updates["name"] = req.Name
	}

	if req.Status != "" {
		switch req.Status {
		case types.MonitorStatusDisabled:
			updates["status"] = types.MonitorStatusDisabled
		case types.MonitorStatusActive:
			if monitor.Status == types.MonitorStatusDisabled {
				updates["status"] = types.MonitorStatusActive
				reschedule = true
			}
		default:
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Status must be active or disabled"})
			return
		}
	}

	cfg, err := monitor.ParseConfig()

	if err != nil {
		zap.L().Error("Stored monitor config is unreadable", zap.Uint("monitor_id", monitor.ID), zap.Error(err))
	}

	if req.Config != nil {
		cfg = *req.Config

		configJSON, err := json.Marshal(cfg)

		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config format"})
			return
		}

		updates["config"] = configJSON
		reschedule = true
	}

	if reschedule {
		sched, err := schedule.Parse(cfg)

		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule: " + err.Error()})
			return
		}

		updates["next_checkin"] = sched.Next(checkins.Now())
	}

	if len(updates) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No valid fields to update"})
		return
	}

	if err := db.DB.Model(&monitor).Updates(updates).Error; err != nil {
		zap.L().Error("Failed to update monitor", zap.Uint("monitor_id", monitor.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update monitor"})
		return
	}

	if err := db.DB.First(&monitor, monitor.ID).Error; err != nil {
		zap.L().Error("Failed to refresh monitor", zap.Uint("monitor_id", monitor.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve monitor"})
		return
	}

	ctx.JSON(http.StatusOK, newMonitorResponse(monitor, nil))
}

func DeleteMonitor(ctx *gin.Context) {
	monitor, ok := monitorFromRequest(ctx)

	if !ok {
		return
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("monitor_id = ?", monitor.ID).Delete(&models.MonitorCheckIn{}).Error; err != nil {
			return err
		}
		return tx.Delete(&monitor).Error
	})

	if err != nil {
		zap.L().Error("Failed to delete monitor", zap.Uint("monitor_id", monitor.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete monitor"})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func GetDashboard(ctx *gin.Context) {
	project, ok := projectFromRequest(ctx)

	if !ok {
		return
	}

	monitors, err := listMonitorResponses(project.ID)

	if err != nil {
		zap.L().Error("Failed to list monitors", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve monitors"})
		return
	}

	var summary MonitorsSummary

	for _, monitor := range monitors {
		summary.Total++

		switch monitor.Status {
		case types.MonitorStatusOK:
			summary.OK++
		case types.MonitorStatusError:
			summary.Error++
		case types.MonitorStatusDisabled:
			summary.Disabled++
		default:
			summary.Pending++
		}
	}

	failures, err := recentFailures(project.ID, checkins.Now().Add(-recentFailureWindow))

	if err != nil {
		zap.L().Error("Failed to list recent failures", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve recent failures"})
		return
	}

	ctx.JSON(http.StatusOK, DashboardResponse{
		Project: ProjectSummary{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
		},
		MonitorsSummary: summary,
		Monitors:        monitors,
		RecentFailures:  failures,
	})
}

func newMonitorResponse(monitor models.Monitor, latest *models.MonitorCheckIn) MonitorResponse {
	cfg, err := monitor.ParseConfig()

	if err != nil {
		zap.L().Warn("Stored monitor config is unreadable", zap.Uint("monitor_id", monitor.ID), zap.Error(err))
	}

	response := MonitorResponse{
		ID:          monitor.GUID.String(),
		ProjectID:   monitor.ProjectID,
		Name:        monitor.Name,
		Status:      monitor.Status,
		Config:      cfg,
		LastCheckin: monitor.LastCheckin,
		NextCheckin: monitor.NextCheckin,
	}

	if latest != nil {
		checkin := NewCheckInResponse(*latest)
		response.LastCheckIn = &checkin
	}

	return response
}

func listMonitorResponses(projectID uint) ([]MonitorResponse, error) {
	var monitors []models.Monitor

	if err := db.DB.Where("project_id = ?", projectID).Order("id").Find(&monitors).Error; err != nil {
		return nil, err
	}

	responses := make([]MonitorResponse, 0, len(monitors))

	for _, monitor := range monitors {
		latest, err := latestCheckIn(monitor.ID)

		if err != nil {
			return nil, err
		}

		responses = append(responses, newMonitorResponse(monitor, latest))
	}

	return responses, nil
}

func latestCheckIn(monitorID uint) (*models.MonitorCheckIn, error) {
	var checkin models.MonitorCheckIn

	err := db.DB.Where("monitor_id = ?", monitorID).
		Order("date_added DESC").
		Order("id DESC").
		First(&checkin).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &checkin, nil
}

func recentFailures(projectID uint, since time.Time) ([]FailureSummary, error) {
	var rows []models.MonitorCheckIn

	err := db.DB.Where("project_id = ? AND status IN ? AND date_added > ?", projectID,
		[]types.CheckInStatus{types.CheckInError, types.CheckInMissed}, since).
		Order("date_added DESC").
		Limit(10).
		Find(&rows).Error

	if err != nil {
		return nil, err
	}

	names := make(map[uint]models.Monitor)
	failures := make([]FailureSummary, 0, len(rows))

	for _, row := range rows {
		monitor, seen := names[row.MonitorID]

		if !seen {
			if err := db.DB.First(&monitor, row.MonitorID).Error; err != nil {
				return nil, err
			}
			names[row.MonitorID] = monitor
		}

		failures = append(failures, FailureSummary{
			MonitorID:   monitor.GUID.String(),
			MonitorName: monitor.Name,
			CheckIn:     NewCheckInResponse(row),
		})
	}

	return failures, nil
}
