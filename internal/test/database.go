package test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/models"
	"github.com/monocle-dev/crons/internal/types"
	"gorm.io/gorm"
)

// NewDatabase opens a migrated sqlite database in a temp dir.
func NewDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Open("sqlite", filepath.Join(t.TempDir(), "monocle.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return conn
}

// Fixture is a user owning a project with one monitor.
type Fixture struct {
	User    models.User
	Project models.Project
	Monitor models.Monitor
}

// HourlyConfig is an interval schedule expecting a check-in every hour.
var HourlyConfig = types.MonitorConfig{
	ScheduleType: types.ScheduleInterval,
	Interval:     &types.IntervalConfig{Value: 1, Unit: "hour"},
}

func SeedFixture(t *testing.T, conn *gorm.DB, cfg types.MonitorConfig) Fixture {
	t.Helper()

	var f Fixture

	f.User = models.User{Name: "Ada", Email: uuid.NewString() + "@example.com", PasswordHash: "x"}
	if err := conn.Create(&f.User).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	f.Project = models.Project{Name: "backups", OwnerID: f.User.ID}
	if err := conn.Create(&f.Project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}

	f.Monitor = SeedMonitor(t, conn, f.Project.ID, cfg)

	return f
}

func SeedMonitor(t *testing.T, conn *gorm.DB, projectID uint, cfg types.MonitorConfig) models.Monitor {
	t.Helper()

	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}

	monitor := models.Monitor{
		GUID:      uuid.New(),
		ProjectID: projectID,
		Name:      "nightly",
		Status:    types.MonitorStatusActive,
		Config:    raw,
	}
	if err := conn.Create(&monitor).Error; err != nil {
		t.Fatalf("create monitor: %v", err)
	}

	return monitor
}
