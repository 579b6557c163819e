package models

import "time"

// Guest is one person staying under a reservation, as reported to the police
// lodging service. Place and country fields hold the service's code tables.
type Guest struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	ReservationID uint `gorm:"index" json:"reservation_id"`

	// GuestType is the tipo alloggiato code (16..20).
	GuestType string    `gorm:"size:2" json:"guest_type"`
	LastName  string    `gorm:"size:50" json:"last_name"`
	FirstName string    `gorm:"size:30" json:"first_name"`
	Sex       string    `gorm:"size:1" json:"sex"` // "M" / "F"
	BirthDate time.Time `gorm:"type:date" json:"birth_date"`

	BirthPlace    string `gorm:"size:9" json:"birth_place"`
	BirthProvince string `gorm:"size:2" json:"birth_province"`
	BirthCountry  string `gorm:"size:9" json:"birth_country"`
	Citizenship   string `gorm:"size:9" json:"citizenship"`

	DocumentType     string `gorm:"size:5" json:"document_type"`
	DocumentNumber   string `gorm:"size:20" json:"document_number"`
	DocumentIssuedAt string `gorm:"size:9" json:"document_issued_at"`
	ResidenceCountry string `gorm:"size:9" json:"residence_country"`

	Reservation Reservation `gorm:"foreignKey:ReservationID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckinCategoryChoice is one entry of an imported code table
// (comuni, stati, documenti, tipi alloggiato).
type CheckinCategoryChoice struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Category    string `gorm:"index;size:50" json:"category"`
	Code        string `gorm:"column:codice;size:20" json:"codice"`
	Description string `gorm:"column:descrizione;size:255" json:"descrizione"`
}

// DmsPugliaReport records the stored daily movements file of a structure.
type DmsPugliaReport struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StructureID uint      `gorm:"uniqueIndex:idx_dms_structure_date" json:"structure_id"`
	Date        time.Time `gorm:"type:date;uniqueIndex:idx_dms_structure_date" json:"date"`
	Path        string    `gorm:"size:255" json:"path"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
