package models

import (
	"time"

	"gorm.io/gorm"
)

type Discount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"uniqueIndex;size:50" json:"code"`
	Description string    `gorm:"type:text" json:"description"`
	Percent     float64   `gorm:"column:discount;type:decimal(5,2)" json:"discount"`
	StartDate   time.Time `gorm:"type:date" json:"start_date"`
	EndDate     time.Time `gorm:"type:date" json:"end_date"`
	MinNights   int       `gorm:"column:numbers_of_nights;default:1" json:"numbers_of_nights"`

	// Empty means the code is valid for every room.
	Rooms []Room `gorm:"many2many:discount_rooms" json:"rooms,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AppliesToRoom reports whether roomID is within the code's room scope.
func (d Discount) AppliesToRoom(roomID uint) bool {
	if len(d.Rooms) == 0 {
		return true
	}
	for _, r := range d.Rooms {
		if r.ID == roomID {
			return true
		}
	}
	return false
}
