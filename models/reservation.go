package models

import (
	"time"

	"gorm.io/gorm"
)

type Reservation struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	ReservationID string `gorm:"column:reservation_id;uniqueIndex;size:36" json:"reservation_id"`

	UserID *uint `gorm:"index" json:"user_id,omitempty"`
	RoomID uint  `gorm:"index" json:"room_id"`

	// Dates are stored as UTC midnight. CheckOut is exclusive.
	CheckIn        time.Time `gorm:"type:date;index" json:"check_in"`
	CheckOut       time.Time `gorm:"type:date;index" json:"check_out"`
	NumberOfPeople int       `json:"number_of_people"`

	BaseCost  float64 `gorm:"type:decimal(10,2)" json:"base_cost"`
	TotalCost float64 `gorm:"type:decimal(10,2)" json:"total_cost"`
	Status    string  `gorm:"size:16;index;default:UNPAID" json:"status"`

	FirstName string `gorm:"size:150" json:"first_name"`
	LastName  string `gorm:"size:150" json:"last_name"`
	Phone     string `gorm:"size:20" json:"phone"`
	Email     string `gorm:"size:254" json:"email"`

	CouponUsed *string `gorm:"size:50" json:"coupon_used,omitempty"`

	PaymentSessionID *string `gorm:"size:255;uniqueIndex" json:"-"`
	PaymentIntentID  *string `gorm:"size:255;index" json:"payment_intent_id,omitempty"`
	EventID          *string `gorm:"size:255" json:"event_id,omitempty"`
	EventCalendarID  *string `gorm:"size:255" json:"-"`

	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`

	Room   Room    `gorm:"foreignKey:RoomID" json:"-"`
	User   *User   `gorm:"foreignKey:UserID" json:"-"`
	Guests []Guest `gorm:"foreignKey:ReservationID" json:"guests,omitempty"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Nights is the number of nights between check-in and check-out.
func (r Reservation) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

func (r Reservation) GuestName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// HasPaymentReference reports whether the provider knows about this reservation.
func (r Reservation) HasPaymentReference() bool {
	return (r.PaymentIntentID != nil && *r.PaymentIntentID != "") ||
		(r.PaymentSessionID != nil && *r.PaymentSessionID != "")
}
