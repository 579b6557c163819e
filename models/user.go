package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Username  string  `gorm:"uniqueIndex;size:150" json:"username"`
	Email     string  `gorm:"uniqueIndex;size:254" json:"email"`
	Password  string  `gorm:"size:255" json:"-"` // bcrypt hash
	FirstName string  `gorm:"size:150" json:"first_name"`
	LastName  string  `gorm:"size:150" json:"last_name"`
	Telephone *string `gorm:"uniqueIndex;size:20" json:"telephone,omitempty"`
	Status    string  `gorm:"size:32;default:PENDING_EXTRA_DATA" json:"status"`
	Type      string  `gorm:"size:32;default:CUSTOMER" json:"type"`

	IsActive         bool `gorm:"default:true" json:"is_active"`
	IsSuperuser      bool `gorm:"default:false" json:"is_superuser"`
	EmailVerified    bool `gorm:"default:false" json:"email_verified"`
	HasAcceptedTerms bool `gorm:"default:false" json:"has_accepted_terms"`

	VerificationToken *string `gorm:"size:128;index" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// AuthToken is an opaque bearer token. Only the sha256 of the token is stored.
type AuthToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	TokenHash string    `gorm:"uniqueIndex;size:64" json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
