package models

import "gorm.io/gorm"

// ProjectKey is an ingestion credential. It can post check-ins for the
// monitors of its project and nothing else.
type ProjectKey struct {
	gorm.Model

	ProjectID uint   `gorm:"not null;index"`
	Label     string `gorm:"not null"`
	PublicKey string `gorm:"size:32;uniqueIndex;not null"`
	IsActive  bool   `gorm:"default:true"`

	// Relationships
	Project Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
