package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentEvent is the audit row of a processed provider webhook.
type PaymentEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"uniqueIndex;size:255" json:"event_id"`
	Type        string         `gorm:"size:100" json:"type"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt time.Time      `json:"processed_at"`
}
