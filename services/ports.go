package services

import (
	"context"
	"time"

	"rental-backend/calendar"
	"rental-backend/notify"
	"rental-backend/payments"
)

// CalendarClient is the subset of the calendar API the services use.
type CalendarClient interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]calendar.Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error)
	RefundPayment(ctx context.Context, paymentIntentID string) (*payments.Refund, error)
}

// Notifier delivers guest and owner messages. Implementations never fail
// the caller.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, v notify.ReservationView)
	ReservationCanceled(ctx context.Context, v notify.ReservationView)
	RefundIssued(ctx context.Context, v notify.ReservationView)
	CheckinReminder(ctx context.Context, v notify.ReservationView)
	EmailVerification(ctx context.Context, to, name, link string)
}

type nopNotifier struct{}

func (nopNotifier) ReservationConfirmed(context.Context, notify.ReservationView) {}
func (nopNotifier) ReservationCanceled(context.Context, notify.ReservationView)  {}
func (nopNotifier) RefundIssued(context.Context, notify.ReservationView)         {}
func (nopNotifier) CheckinReminder(context.Context, notify.ReservationView)      {}
func (nopNotifier) EmailVerification(context.Context, string, string, string)    {}
