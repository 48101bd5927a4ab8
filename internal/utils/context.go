package utils

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/middleware"
	"github.com/monocle-dev/crons/internal/types"
)

func GetCurrentUser(ctx *gin.Context) (middleware.AuthenticatedUser, error) {
	user, exists := ctx.Get(types.ContextUserKey)

	if !exists {
		return middleware.AuthenticatedUser{}, fmt.Errorf("User not authenticated")
	}

	authenticatedUser, ok := user.(middleware.AuthenticatedUser)

	if !ok {
		return middleware.AuthenticatedUser{}, fmt.Errorf("Invalid user type in context")
	}

	return authenticatedUser, nil
}

func GetCurrentUserID(ctx *gin.Context) (uint, error) {
	user, err := GetCurrentUser(ctx)

	if err != nil {
		return 0, err
	}

	return user.ID, nil
}

// GetPrincipal returns whoever authenticated the request, user or project key.
func GetPrincipal(ctx *gin.Context) (auth.Principal, error) {
	value, exists := ctx.Get(types.ContextPrincipalKey)

	if !exists {
		return auth.Principal{}, fmt.Errorf("Request not authenticated")
	}

	principal, ok := value.(auth.Principal)

	if !ok {
		return auth.Principal{}, fmt.Errorf("Invalid principal type in context")
	}

	return principal, nil
}
