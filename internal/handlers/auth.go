package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"github.com/monocle-dev/crons/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateUserRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email" binding:"omitempty,email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" binding:"omitempty,min=8"`
}

type DeleteUserRequest struct {
	Password string `json:"password" binding:"required"`
}

// ProjectAccess is one project the user can see check-ins for.
type ProjectAccess struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// CookieDomain scopes the session cookie. Empty means the request host.
var CookieDomain string

const sessionMaxAge = 60 * 60 * 24 * 7

var errEmailTaken = errors.New("email already exists")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func setSessionCookie(ctx *gin.Context, token string, maxAge int) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Domain:   CookieDomain,
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func userResponse(user models.User) types.UserResponse {
	return types.UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	}
}

// checkEmailAvailable also looks at deleted accounts, whose rows still hold
// the unique email index.
func checkEmailAvailable(email string, exceptID uint) error {
	var existing models.User

	err := db.DB.Unscoped().Where("email = ? AND id <> ?", email, exceptID).First(&existing).Error

	switch {
	case err == nil:
		return errEmailTaken
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return err
	}
}

// startSession issues the bearer token used by the API and mirrors it in
// the session cookie.
func startSession(ctx *gin.Context, user models.User, status int) {
	token, err := auth.GenerateJWT(user.ID, user.Email)

	if err != nil {
		zap.L().Error("Failed to generate JWT", zap.Uint("user_id", user.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	setSessionCookie(ctx, token, sessionMaxAge)

	ctx.JSON(status, gin.H{
		"user":  userResponse(user),
		"token": token,
	})
}

// loadCurrentUser reads the full row, password hash included, for the
// authenticated user.
func loadCurrentUser(ctx *gin.Context) (models.User, bool) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return models.User{}, false
	}

	var user models.User

	if err := db.DB.First(&user, userID).Error; err != nil {
		respondLookupError(ctx, err, "User")
		return models.User{}, false
	}

	return user, true
}

func CreateUser(ctx *gin.Context) {
	var req CreateUserRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	email := normalizeEmail(req.Email)

	if err := checkEmailAvailable(email, 0); err != nil {
		if errors.Is(err, errEmailTaken) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
			return
		}
		zap.L().Error("Failed to check existing user", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)

	if err != nil {
		zap.L().Error("Failed to hash password", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(passwordHash),
	}

	if err := db.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
			return
		}
		zap.L().Error("Failed to create user", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	startSession(ctx, user, http.StatusCreated)
}

func LoginUser(ctx *gin.Context) {
	var req LoginUserRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var user models.User

	err := db.DB.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		zap.L().Error("Failed to fetch user", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email or password"})
		return
	}

	startSession(ctx, user, http.StatusOK)
}

// Me returns the user and every project whose check-ins they can read.
func Me(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projects, err := accessibleProjects(currentUser.ID)

	if err != nil {
		zap.L().Error("Failed to list user projects", zap.Uint("user_id", currentUser.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"user": types.UserResponse{
			ID:    currentUser.ID,
			Name:  currentUser.Name,
			Email: currentUser.Email,
		},
		"projects": projects,
	})
}

func accessibleProjects(userID uint) ([]ProjectAccess, error) {
	var owned []models.Project

	if err := db.DB.Where("owner_id = ?", userID).Order("id").Find(&owned).Error; err != nil {
		return nil, err
	}

	access := make([]ProjectAccess, 0, len(owned))

	for _, project := range owned {
		access = append(access, ProjectAccess{ID: project.ID, Name: project.Name, Role: models.RoleOwner})
	}

	var memberships []models.ProjectMembership

	if err := db.DB.Preload("Project").Where("user_id = ?", userID).Order("project_id").Find(&memberships).Error; err != nil {
		return nil, err
	}

	for _, membership := range memberships {
		if membership.Project.ID == 0 {
			continue
		}
		access = append(access, ProjectAccess{ID: membership.ProjectID, Name: membership.Project.Name, Role: membership.Role})
	}

	return access, nil
}

func LogoutUser(ctx *gin.Context) {
	setSessionCookie(ctx, "", -1)

	ctx.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func UpdateUser(ctx *gin.Context) {
	user, ok := loadCurrentUser(ctx)

	if !ok {
		return
	}

	var req UpdateUserRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	updates := make(map[string]interface{})

	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}

	if req.Email != "" {
		email := normalizeEmail(req.Email)

		if err := checkEmailAvailable(email, user.ID); err != nil {
			if errors.Is(err, errEmailTaken) {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "Email already exists"})
				return
			}
			zap.L().Error("Failed to check existing email", zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		updates["email"] = email
	}

	if req.NewPassword != "" {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
			return
		}

		passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)

		if err != nil {
			zap.L().Error("Failed to hash new password", zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		updates["password_hash"] = string(passwordHash)
	}

	if len(updates) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No valid fields to update"})
		return
	}

	if err := db.DB.Model(&user).Updates(updates).Error; err != nil {
		zap.L().Error("Failed to update user", zap.Uint("user_id", user.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": userResponse(user)})
}

// DeleteUser closes the account. The user leaves every project they are a
// member of. Projects they own are deleted: their ingestion keys stop
// authenticating and their monitors are disabled so the sweeper no longer
// records missed check-ins for them. Recorded check-ins are kept.
func DeleteUser(ctx *gin.Context) {
	user, ok := loadCurrentUser(ctx)

	if !ok {
		return
	}

	var req DeleteUserRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Password is required for account deletion"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect password"})
		return
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		return closeAccount(tx, user)
	})

	if err != nil {
		zap.L().Error("Failed to delete user", zap.Uint("user_id", user.ID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	setSessionCookie(ctx, "", -1)

	ctx.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

func closeAccount(tx *gorm.DB, user models.User) error {
	if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&models.ProjectMembership{}).Error; err != nil {
		return err
	}

	owned := tx.Model(&models.Project{}).Select("id").Where("owner_id = ?", user.ID)

	if err := tx.Model(&models.ProjectKey{}).Where("project_id IN (?)", owned).Update("is_active", false).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.Monitor{}).Where("project_id IN (?)", owned).Update("status", types.MonitorStatusDisabled).Error; err != nil {
		return err
	}

	if err := tx.Unscoped().Where("project_id IN (?)", owned).Delete(&models.ProjectMembership{}).Error; err != nil {
		return err
	}

	if err := tx.Where("owner_id = ?", user.ID).Delete(&models.Project{}).Error; err != nil {
		return err
	}

	return tx.Delete(&user).Error
}
