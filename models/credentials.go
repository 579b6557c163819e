package models

import "time"

// GoogleOAuthCredential holds the token set authorized for the calendar account.
// A single row is kept; refreshes update it in place.
type GoogleOAuthCredential struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Token        string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	TokenURI     string     `gorm:"size:255" json:"token_uri"`
	ClientID     string     `gorm:"size:255" json:"client_id"`
	ClientSecret string     `gorm:"size:255" json:"-"`
	Scopes       string     `gorm:"type:text" json:"scopes"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AlloggiatiAccount is the per-structure login for the police lodging service.
type AlloggiatiAccount struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	StructureID uint   `gorm:"uniqueIndex" json:"structure_id"`
	Username    string `gorm:"size:100" json:"username"`
	Password    string `gorm:"size:100" json:"-"`
	WSKey       string `gorm:"column:wskey;size:255" json:"-"`

	Structure Structure `gorm:"foreignKey:StructureID" json:"-"`
}

// AlloggiatiToken caches the service token returned by GenerateToken.
type AlloggiatiToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"index" json:"account_id"`
	Issued    time.Time `json:"issued"`
	Expires   time.Time `json:"expires"`
	Token     string    `gorm:"type:text" json:"-"`
}
