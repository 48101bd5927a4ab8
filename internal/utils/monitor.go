package utils

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func GetProjectID(ctx *gin.Context) (uint64, error) {
	var err error

	projectIDStr := ctx.Param("project_id")

	if projectIDStr == "" {
		return 0, errors.New("Project ID not found")
	}

	projectID, err := strconv.ParseUint(projectIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Project ID")
	}

	return projectID, nil
}

// GetMonitorGUID parses the :monitor_id route parameter. Monitors are
// addressed by GUID so that ids handed to job runners are not guessable.
func GetMonitorGUID(ctx *gin.Context) (uuid.UUID, error) {
	monitorIDStr := ctx.Param("monitor_id")

	if monitorIDStr == "" {
		return uuid.Nil, errors.New("Monitor ID not found")
	}

	monitorID, err := uuid.Parse(monitorIDStr)

	if err != nil {
		return uuid.Nil, errors.New("Invalid Monitor ID")
	}

	return monitorID, nil
}

func GetKeyID(ctx *gin.Context) (uint64, error) {
	keyIDStr := ctx.Param("key_id")

	keyID, err := strconv.ParseUint(keyIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Key ID")
	}

	return keyID, nil
}

// GetQueryInt reads an optional non-negative integer query parameter.
func GetQueryInt(ctx *gin.Context, name string) (int, error) {
	value := ctx.Query(name)

	if value == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(value)

	if err != nil || n < 0 {
		return 0, errors.New("Invalid " + name)
	}

	return n, nil
}
