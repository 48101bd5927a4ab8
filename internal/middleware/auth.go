package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AuthenticatedUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthMiddleware only admits users with a bearer token.
func AuthMiddleware() gin.HandlerFunc {
	return authenticate(false)
}

// CheckInAuthMiddleware also admits project keys sent as
// "Authorization: DSN <dsn>". Handlers decide what a key may do.
func CheckInAuthMiddleware() gin.HandlerFunc {
	return authenticate(true)
}

func authenticate(allowKeys bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")

		if authHeader == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)

		if len(parts) != 2 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		switch {
		case parts[0] == "Bearer":
			authenticateUser(ctx, parts[1])
		case parts[0] == "DSN" && allowKeys:
			authenticateKey(ctx, parts[1])
		default:
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
		}
	}
}

func authenticateUser(ctx *gin.Context, tokenString string) {
	token, err := auth.VerifyJWT(tokenString)

	if err != nil || !token.Valid {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	userID, err := auth.UserIDFromToken(token)

	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var user models.User

	if err := db.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	ctx.Set(types.ContextUserKey, AuthenticatedUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	})
	ctx.Set(types.ContextPrincipalKey, auth.Principal{
		Kind:   auth.PrincipalUser,
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	})
	ctx.Next()
}

func authenticateKey(ctx *gin.Context, dsn string) {
	publicKey, err := auth.ParsePublicKey(dsn)

	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid DSN"})
		return
	}

	var key models.ProjectKey

	err = db.DB.Where("public_key = ? AND is_active = ?", publicKey, true).First(&key).Error

	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("Failed to look up project key", zap.Error(err))
		}
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid DSN"})
		return
	}

	ctx.Set(types.ContextPrincipalKey, auth.Principal{
		Kind:      auth.PrincipalProjectKey,
		KeyID:     key.ID,
		ProjectID: key.ProjectID,
	})
	ctx.Next()
}
