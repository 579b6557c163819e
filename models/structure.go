package models

import (
	"time"

	"gorm.io/gorm"
)

type Structure struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Address     string `gorm:"size:255" json:"address"`
	// CIS is the regional identification code used by the DMS report.
	CIS string `gorm:"column:cis;uniqueIndex;size:50" json:"cis"`

	Rooms  []Room           `gorm:"foreignKey:StructureID" json:"rooms,omitempty"`
	Images []StructureImage `gorm:"foreignKey:StructureID" json:"images,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type StructureImage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StructureID uint      `gorm:"index" json:"structure_id"`
	Path        string    `gorm:"size:255" json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}
