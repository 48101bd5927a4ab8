package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/monocle-dev/crons/internal/types"
)

// MonitorCheckIn is an append-only record; rows are never updated.
type MonitorCheckIn struct {
	ID        uint                `gorm:"primaryKey"`
	GUID      uuid.UUID           `gorm:"size:36;uniqueIndex;not null"`
	ProjectID uint                `gorm:"not null;index"`
	MonitorID uint                `gorm:"not null;index:idx_checkin_monitor_date_added,priority:1"`
	Status    types.CheckInStatus `gorm:"not null"`
	Duration  *int
	DateAdded time.Time `gorm:"not null;index:idx_checkin_monitor_date_added,priority:2"`
}
