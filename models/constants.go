package models

// Reservation status
const (
	StatusUnpaid   = "UNPAID"
	StatusPaid     = "PAID"
	StatusCanceled = "CANCELED"
)

// Room status
const (
	RoomAvailable   = "AVAILABLE"
	RoomUnavailable = "UNAVAILABLE"
)

// User type / profile status
const (
	UserCustomer = "CUSTOMER"
	UserAdmin    = "ADMIN"

	ProfileComplete         = "COMPLETE"
	ProfilePendingExtraData = "PENDING_EXTRA_DATA"
)

// ChannelDirect is the property's own calendar. Events there are matched to a
// room by name; every other channel is an import calendar dedicated to one room.
const ChannelDirect = "direct"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"
