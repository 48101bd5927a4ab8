package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/db"
	"go.uber.org/zap"
)

var errDatabaseUnavailable = errors.New("database not connected")

func HealthCheck(c *gin.Context) {
	status, code := "ok", http.StatusOK

	if err := pingDatabase(); err != nil {
		zap.L().Warn("Health check database ping failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"message":   "Cron check-in service is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func pingDatabase() error {
	if db.DB == nil {
		return errDatabaseUnavailable
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}
