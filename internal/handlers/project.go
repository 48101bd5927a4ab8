package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DSNScheme and DSNHost are used to render the DSN of new project keys.
var (
	DSNScheme = "https"
	DSNHost   = "localhost:8000"
)

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type GetProjectResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     uint   `json:"owner_id"`
}

type CreateKeyRequest struct {
	Label string `json:"label" binding:"required"`
}

type KeyResponse struct {
	ID        uint   `json:"id"`
	Label     string `json:"label"`
	PublicKey string `json:"public_key"`
	DSN       string `json:"dsn"`
	IsActive  bool   `json:"is_active"`
}

type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"omitempty,oneof=admin member"`
}

type MemberResponse struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func newProjectResponse(project models.Project) GetProjectResponse {
	return GetProjectResponse{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		OwnerID:     project.OwnerID,
	}
}

func newKeyResponse(key models.ProjectKey) KeyResponse {
	return KeyResponse{
		ID:        key.ID,
		Label:     key.Label,
		PublicKey: key.PublicKey,
		DSN:       auth.BuildDSN(DSNScheme, DSNHost, key.PublicKey, key.ProjectID),
		IsActive:  key.IsActive,
	}
}

// ownedProjectFromRequest resolves :project_id for the current user, who must
// own it. It writes the error response itself and reports whether to go on.
func ownedProjectFromRequest(ctx *gin.Context) (models.Project, bool) {
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

	project, err := findOwnedProject(userID, projectID)

	if err != nil {
		respondLookupError(ctx, err, "Project")
		return models.Project{}, false
	}

	return project, true
}

func CreateProject(ctx *gin.Context) {
	var body CreateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	project := models.Project{
		Name:        body.Name,
		Description: body.Description,
		OwnerID:     userID,
	}

	if err := db.DB.Create(&project).Error; err != nil {
		zap.L().Error("Failed to create project", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	ctx.JSON(http.StatusCreated, newProjectResponse(project))
}

func ListProjects(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var projects []models.Project

	members := db.DB.Model(&models.ProjectMembership{}).Select("project_id").Where("user_id = ?", userID)

	if err := db.DB.Where("owner_id = ? OR id IN (?)", userID, members).Order("id").Find(&projects).Error; err != nil {
		zap.L().Error("Failed to list projects", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	response := make([]GetProjectResponse, 0, len(projects))

	for _, project := range projects {
		response = append(response, newProjectResponse(project))
	}

	ctx.JSON(http.StatusOK, response)
}

func UpdateProject(ctx *gin.Context) {
	project, ok := ownedProjectFromRequest(ctx)

	if !ok {
		return
	}

	var body UpdateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	project.Name = body.Name
	project.Description = body.Description

	if err := db.DB.Save(&project).Error; err != nil {
		zap.L().Error("Failed to update project", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	ctx.JSON(http.StatusOK, newProjectResponse(project))
}

func DeleteProject(ctx *gin.Context) {
	project, ok := ownedProjectFromRequest(ctx)

	if !ok {
		return
	}

	if err := db.DB.Delete(&project).Error; err != nil {
		zap.L().Error("Failed to delete project", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func CreateProjectKey(ctx *gin.Context) {
	project, ok := ownedProjectFromRequest(ctx)

	if !ok {
		return
	}

	var body CreateKeyRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	key := models.ProjectKey{
		ProjectID: project.ID,
		Label:     strings.TrimSpace(body.Label),
		PublicKey: auth.GeneratePublicKey(),
		IsActive:  true,
	}

	if err := db.DB.Create(&key).Error; err != nil {
		zap.L().Error("Failed to create project key", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create key"})
		return
	}

	ctx.JSON(http.StatusCreated, newKeyResponse(key))
}

func ListProjectKeys(ctx *gin.Context) {
	project, ok := ownedProjectFromRequest(ctx)

	if !ok {
		return
	}

	var keys []models.ProjectKey

	if err := db.DB.Where("project_id = ?", project.ID).Order("id").Find(&keys).Error; err != nil {
		zap.L().Error("Failed to list project keys", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve keys"})
		return
	}

	response := make([]KeyResponse, 0, len(keys))

	for _, key := range keys {
		response = append(response, newKeyResponse(key))
	}

	ctx.JSON(http.StatusOK, response)
}

// RevokeProjectKey deactivates a key. Check-ins already recorded with it
// are kept.
func RevokeProjectKey(ctx *gin.Context) {
	project, ok := ownedProjectFromRequest(ctx)

	if !ok {
		return
	}

	keyID, err := utils.GetKeyID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := db.DB.Model(&models.ProjectKey{}).
		Where("id = ? AND project_id = ?", keyID, project.ID).
		Update("is_active", false)

	if result.Error != nil {
		zap.L().Error("Failed to revoke project key", zap.Uint64("key_id", keyID), zap.Error(result.Error))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke key"})
		return
	}

	if result.RowsAffected == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func AddProjectMember(ctx *gin.Context) {
	project, ok := ownedProjectFromRequest(ctx)

	if !ok {
		return
	}

	var body AddMemberRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var user models.User

	err := db.DB.Where("email = ?", normalizeEmail(body.Email)).First(&user).Error

	if err != nil {
		respondLookupError(ctx, err, "User")
		return
	}

	if user.ID == project.OwnerID {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "User already owns this project"})
		return
	}

	role := body.Role
	if role == "" {
		role = models.RoleMember
	}

	membership := models.ProjectMembership{
		UserID:    user.ID,
		ProjectID: project.ID,
		Role:      role,
	}

	if err := db.DB.Create(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
			return
		}
		zap.L().Error("Failed to add project member", zap.Uint("project_id", project.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	ctx.JSON(http.StatusCreated, MemberResponse{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   membership.Role,
	})
}
