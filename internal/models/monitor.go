package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/monocle-dev/crons/internal/types"
	"gorm.io/datatypes"
)

type Monitor struct {
	BaseModel

	GUID        uuid.UUID           `gorm:"size:36;uniqueIndex;not null"`
	ProjectID   uint                `gorm:"not null;index"` // Foreign key to the Project
	Name        string              `gorm:"not null"`
	Status      types.MonitorStatus `gorm:"not null;index"`
	Config      datatypes.JSON
	LastCheckin *time.Time
	NextCheckin *time.Time `gorm:"index"`

	// Relationships
	Project  Project          `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	CheckIns []MonitorCheckIn `gorm:"foreignKey:MonitorID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}

// ParseConfig decodes the stored config. A missing config yields the zero value.
func (m *Monitor) ParseConfig() (types.MonitorConfig, error) {
	var cfg types.MonitorConfig

	if len(m.Config) == 0 {
		return cfg, nil
	}

	if err := json.Unmarshal(m.Config, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
