package models

import (
	"time"

	"gorm.io/gorm"
)

type Room struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	StructureID  uint    `gorm:"index" json:"structure_id"`
	RoomStatus   string  `gorm:"size:32;default:AVAILABLE" json:"room_status"`
	Name         string  `gorm:"size:100" json:"name"`
	Services     string  `gorm:"type:text" json:"services"`
	CostPerNight float64 `gorm:"type:decimal(10,2)" json:"cost_per_night"`
	MaxPeople    int     `gorm:"default:1" json:"max_people"`

	Structure Structure      `gorm:"foreignKey:StructureID" json:"-"`
	Calendars []RoomCalendar `gorm:"foreignKey:RoomID" json:"calendars,omitempty"`
	Images    []RoomImage    `gorm:"foreignKey:RoomID" json:"images,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RoomCalendar binds a room to an external calendar for one booking channel.
type RoomCalendar struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RoomID     uint   `gorm:"uniqueIndex:idx_room_channel" json:"room_id"`
	Channel    string `gorm:"uniqueIndex:idx_room_channel;size:32" json:"channel"`
	CalendarID string `gorm:"size:255" json:"calendar_id"`
}

type RoomImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"index" json:"room_id"`
	Path      string    `gorm:"size:255" json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectCalendar returns the calendar id of the property's own calendar, if any.
func (r Room) DirectCalendar() string {
	for _, c := range r.Calendars {
		if c.Channel == ChannelDirect {
			return c.CalendarID
		}
	}
	return ""
}
