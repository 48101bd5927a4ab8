package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// findProject loads a project the user owns or is a member of.
func findProject(userID uint, projectID uint64) (models.Project, error) {
	var project models.Project

	members := db.DB.Model(&models.ProjectMembership{}).Select("project_id").Where("user_id = ?", userID)

	err := db.DB.Where("id = ? AND (owner_id = ? OR id IN (?))", projectID, userID, members).First(&project).Error

	return project, err
}

// findOwnedProject loads a project only if the user owns it.
func findOwnedProject(userID uint, projectID uint64) (models.Project, error) {
	var project models.Project

	err := db.DB.Where("id = ? AND owner_id = ?", projectID, userID).First(&project).Error

	return project, err
}

// findMonitor loads a monitor visible to the principal. Users see monitors of
// their projects, project keys only those of the key's project. Invisible
// monitors are reported as checkins.ErrMonitorNotFound.
func findMonitor(principal auth.Principal, guid uuid.UUID) (models.Monitor, error) {
	var monitor models.Monitor

	if err := db.DB.Where("guid = ?", guid).First(&monitor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Monitor{}, checkins.ErrMonitorNotFound
		}
		return monitor, err
	}

	switch principal.Kind {
	case auth.PrincipalProjectKey:
		if monitor.ProjectID != principal.ProjectID {
			return models.Monitor{}, checkins.ErrMonitorNotFound
		}
	case auth.PrincipalUser:
		if _, err := findProject(principal.UserID, uint64(monitor.ProjectID)); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Monitor{}, checkins.ErrMonitorNotFound
			}
			return models.Monitor{}, err
		}
	default:
		return models.Monitor{}, checkins.ErrMonitorNotFound
	}

	return monitor, nil
}

// respondLookupError writes a 404 for missing records and a 500 otherwise.
func respondLookupError(ctx *gin.Context, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, checkins.ErrMonitorNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}

	zap.L().Error("Failed to retrieve "+what, zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve " + what})
}
