package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"rental-backend/access"
	"rental-backend/availability"
	"rental-backend/calendar"
	"rental-backend/metrics"
	"rental-backend/models"
	"rental-backend/notify"
	"rental-backend/payments"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// checkoutSessionTTL is the shortest lifetime the payment provider accepts
// for a hosted checkout.
const checkoutSessionTTL = 30 * time.Minute

type ReservationConfig struct {
	MaxStayNights   int
	Currency        string
	FrontendURL     string
	DefaultCalendar string
}

// ReservationService owns the reservation lifecycle: create, discount,
// checkout, webhook confirmation, cancellation and expiry.
type ReservationService struct {
	DB           *gorm.DB
	Availability *AvailabilityService
	Calendar     CalendarClient
	Payments     PaymentGateway
	Webhooks     *payments.Verifier
	Notifier     Notifier
	Metrics      metrics.Recorder
	Config       ReservationConfig
	Now          func() time.Time
}

func NewReservationService(db *gorm.DB, avail *AvailabilityService, cfg ReservationConfig) *ReservationService {
	if cfg.MaxStayNights <= 0 {
		cfg.MaxStayNights = 30
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	return &ReservationService{
		DB:           db,
		Availability: avail,
		Calendar:     avail.Calendar,
		Notifier:     nopNotifier{},
		Metrics:      metrics.Nop{},
		Config:       cfg,
		Now:          avail.Now,
	}
}

type CreateReservationInput struct {
	RoomID         uint
	UserID         *uint
	CheckIn        time.Time
	CheckOut       time.Time
	NumberOfPeople int
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	Coupon         string
}

func (s *ReservationService) validateCreate(in *CreateReservationInput) error {
	in.CheckIn, in.CheckOut = availability.Day(in.CheckIn), availability.Day(in.CheckOut)
	if err := validateRange(in.CheckIn, in.CheckOut); err != nil {
		return err
	}
	if n := availability.Nights(in.CheckIn, in.CheckOut); n > s.Config.MaxStayNights {
		return Validation("error.stayTooLong", fmt.Sprintf("a stay cannot exceed %d nights", s.Config.MaxStayNights)).
			WithField("check_out", fmt.Sprintf("at most %d nights", s.Config.MaxStayNights))
	}
	if in.CheckIn.Before(availability.Day(s.Now())) {
		return Validation("error.pastDate", "check_in cannot be in the past").WithField("check_in", "cannot be in the past")
	}
	if in.NumberOfPeople < 1 {
		return Validation("error.invalidPeople", "number_of_people must be at least 1").WithField("number_of_people", "must be at least 1")
	}
	return nil
}

// Create books the room. The room row is locked for the whole check and
// insert so two bookings of the same room cannot interleave.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (*models.Reservation, error) {
	if err := s.validateCreate(&in); err != nil {
		return nil, err
	}

	var res models.Reservation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, in.RoomID).Error; err != nil {
			return dbError(err, NotFound("error.roomNotFound", "room not found"))
		}
		if err := tx.Where("room_id = ?", room.ID).Find(&room.Calendars).Error; err != nil {
			return Internal(err)
		}
		if room.RoomStatus != models.RoomAvailable {
			return Conflict("error.roomUnavailable", "room is not open for bookings")
		}
		if in.NumberOfPeople > room.MaxPeople {
			return Validation("error.tooManyPeople", fmt.Sprintf("room hosts at most %d people", room.MaxPeople)).
				WithField("number_of_people", fmt.Sprintf("at most %d", room.MaxPeople))
		}

		local, err := s.Availability.LocalBusyDates(tx, room.ID, in.CheckIn, in.CheckOut, 0)
		if err != nil {
			return err
		}
		external, err := s.Availability.ExternalBusyDates(ctx, room, in.CheckIn, in.CheckOut)
		if err != nil {
			return err
		}
		busy := local.Union(external)
		if !availability.IsAvailable(busy, in.CheckIn, in.CheckOut) {
			return Conflict("error.roomNotAvailable", "the room is not available for the selected dates").
				WithField("busy_dates", availability.Conflicts(busy, in.CheckIn, in.CheckOut))
		}

		nights := availability.Nights(in.CheckIn, in.CheckOut)
		cost := roundCents(float64(nights) * room.CostPerNight)
		res = models.Reservation{
			ReservationID:  uuid.NewString(),
			UserID:         in.UserID,
			RoomID:         room.ID,
			CheckIn:        in.CheckIn,
			CheckOut:       in.CheckOut,
			NumberOfPeople: in.NumberOfPeople,
			BaseCost:       cost,
			TotalCost:      cost,
			Status:         models.StatusUnpaid,
			FirstName:      strings.TrimSpace(in.FirstName),
			LastName:       strings.TrimSpace(in.LastName),
			Phone:          strings.TrimSpace(in.Phone),
			Email:          strings.TrimSpace(in.Email),
			CreatedAt:      s.Now(),
		}

		if code := strings.TrimSpace(in.Coupon); code != "" {
			d, err := findDiscount(tx, code)
			if err != nil {
				return err
			}
			if err := applyDiscount(&res, d); err != nil {
				return err
			}
		}
		return dbError(tx.Create(&res).Error, nil)
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.RecordReservation("created")
	slog.Info("reservation created",
		slog.String("reservation_id", res.ReservationID),
		slog.Uint64("room_id", uint64(res.RoomID)),
		slog.String("check_in", res.CheckIn.Format(models.DateLayout)),
		slog.String("check_out", res.CheckOut.Format(models.DateLayout)),
		slog.Float64("total_cost", res.TotalCost),
	)
	return &res, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func findDiscount(tx *gorm.DB, code string) (models.Discount, error) {
	var d models.Discount
	err := tx.Preload("Rooms").Where("code = ?", code).First(&d).Error
	return d, dbError(err, NotFound("error.discountNotFound", "discount not found"))
}

// applyDiscount prices the reservation from its base cost, so applying the
// same code again leaves the total unchanged.
func applyDiscount(r *models.Reservation, d models.Discount) error {
	in, out := availability.Day(r.CheckIn), availability.Day(r.CheckOut)
	inWindow := !in.Before(availability.Day(d.StartDate)) && !out.After(availability.Day(d.EndDate))
	if !inWindow || r.Nights() < d.MinNights || !d.AppliesToRoom(r.RoomID) {
		return Validation("error.discountNotValid", "discount not valid for the reservation dates")
	}
	r.TotalCost = roundCents(r.BaseCost - r.BaseCost*d.Percent/100)
	code := d.Code
	r.CouponUsed = &code
	return nil
}

// ApplyDiscount applies code to an unpaid reservation.
func (s *ReservationService) ApplyDiscount(ctx context.Context, p access.Principal, reservationID, code string) (*models.Reservation, error) {
	var res models.Reservation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockReservation(tx, reservationID, &res); err != nil {
			return err
		}
		if err := guardReservation(p, res); err != nil {
			return err
		}
		if res.Status != models.StatusUnpaid {
			return Conflict("error.reservationNotUnpaid", "discounts can only be applied to unpaid reservations")
		}
		d, err := findDiscount(tx, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		if err := applyDiscount(&res, d); err != nil {
			return err
		}
		return dbError(tx.Model(&res).Updates(map[string]any{
			"total_cost":  res.TotalCost,
			"coupon_used": res.CouponUsed,
		}).Error, nil)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func lockReservation(tx *gorm.DB, reservationID string, res *models.Reservation) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_id = ?", reservationID).
		First(res).Error
	return dbError(err, NotFound("error.reservationNotFound", "reservation not found"))
}

// guardReservation lets anyone holding the code handle an anonymous
// reservation; owned reservations need their owner or an admin.
func guardReservation(p access.Principal, r models.Reservation) error {
	if r.UserID == nil {
		return nil
	}
	if d := access.OwnerOrAdmin(r.UserID)(p); d != nil {
		return Forbidden(d.Code, d.Message)
	}
	return nil
}

type CheckoutResult struct {
	ReservationID string `json:"reservation_id"`
	SessionID     string `json:"session_id"`
	URL           string `json:"url"`
}

// CreateCheckoutSession starts the hosted payment flow. The reservation row
// stays locked until the session id is stored.
func (s *ReservationService) CreateCheckoutSession(ctx context.Context, p access.Principal, reservationID string) (*CheckoutResult, error) {
	if s.Payments == nil {
		return nil, External("error.paymentsDisabled", "payments are not configured", nil)
	}
	var out CheckoutResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res models.Reservation
		if err := lockReservation(tx, reservationID, &res); err != nil {
			return err
		}
		if err := guardReservation(p, res); err != nil {
			return err
		}
		if res.Status != models.StatusUnpaid {
			return Conflict("error.reservationNotUnpaid", "reservation is not awaiting payment")
		}
		now := s.Now()
		if res.CreatedAt.Before(now.Add(-s.Availability.Grace)) {
			return Conflict("error.reservationExpired", "reservation expired, please book again")
		}
		var room models.Room
		if err := tx.First(&room, res.RoomID).Error; err != nil {
			return dbError(err, NotFound("error.roomNotFound", "room not found"))
		}
		busy, err := s.Availability.LocalBusyDates(tx, res.RoomID, res.CheckIn, res.CheckOut, res.ID)
		if err != nil {
			return err
		}
		if !availability.IsAvailable(busy, res.CheckIn, res.CheckOut) {
			return Conflict("error.roomNotAvailable", "the room is not available for the selected dates")
		}

		began := time.Now()
		session, err := s.Payments.CreateCheckoutSession(ctx, payments.CheckoutParams{
			ReservationID:  res.ReservationID,
			Description:    fmt.Sprintf("%s, %s - %s", room.Name, res.CheckIn.Format(models.DateLayout), res.CheckOut.Format(models.DateLayout)),
			Amount:         res.TotalCost,
			Currency:       s.Config.Currency,
			CustomerEmail:  res.Email,
			SuccessURL:     s.reservationLink(res) + "?payment=success",
			CancelURL:      s.reservationLink(res) + "?payment=canceled",
			ExpiresAt:      now.Add(checkoutSessionTTL),
			IdempotencyKey: fmt.Sprintf("checkout-%s-%.2f", res.ReservationID, res.TotalCost),
		})
		s.Metrics.RecordExternalCall("payments", err, time.Since(began))
		if err != nil {
			return External("error.payment", "could not create the payment session", err)
		}
		if err := tx.Model(&res).Update("payment_session_id", session.ID).Error; err != nil {
			return dbError(err, nil)
		}
		out = CheckoutResult{ReservationID: res.ReservationID, SessionID: session.ID, URL: session.URL}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ReservationService) reservationLink(r models.Reservation) string {
	return strings.TrimRight(s.Config.FrontendURL, "/") + "/reservations/" + r.ReservationID
}

type WebhookResult struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	Handled       bool   `json:"handled"`
	Duplicate     bool   `json:"duplicate"`
	Unmatched     bool   `json:"unmatched,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	Status        string `json:"status,omitempty"`
}

// HandleWebhook verifies and applies a payment provider event. Each event id
// is processed at most once.
func (s *ReservationService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.Webhooks == nil {
		return nil, External("error.paymentsDisabled", "payments are not configured", nil)
	}
	ev, err := s.Webhooks.ConstructEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return nil, &AppError{Kind: KindValidation, Code: "error.invalidSignature", Message: "invalid signature", Err: err}
		}
		return nil, &AppError{Kind: KindValidation, Code: "error.invalidPayload", Message: "invalid payload", Err: err}
	}

	result := &WebhookResult{EventID: ev.ID, Type: ev.Type}
	var seen int64
	if err := s.DB.WithContext(ctx).Model(&models.PaymentEvent{}).Where("event_id = ?", ev.ID).Count(&seen).Error; err != nil {
		return nil, Internal(err)
	}
	if seen > 0 {
		result.Duplicate = true
		return result, nil
	}

	var res *models.Reservation
	switch ev.Type {
	case payments.EventCheckoutCompleted:
		var obj payments.SessionObject
		if err := ev.Decode(&obj); err != nil {
			return nil, Validation("error.invalidPayload", "invalid payload")
		}
		res, err = s.Confirm(ctx, "payment_session_id = ?", obj.ID, obj.PaymentIntent)
	case payments.EventPaymentIntentSucceeded:
		var obj payments.PaymentIntentObject
		if err := ev.Decode(&obj); err != nil {
			return nil, Validation("error.invalidPayload", "invalid payload")
		}
		if code := obj.Metadata["reservation_id"]; code != "" {
			res, err = s.Confirm(ctx, "reservation_id = ?", code, obj.ID)
		} else {
			res, err = s.Confirm(ctx, "payment_intent_id = ?", obj.ID, obj.ID)
		}
		// The intent may succeed before checkout.session.completed stores it;
		// that event confirms the booking.
		if err != nil && KindOf(err) == KindNotFound {
			slog.Warn("payment intent matches no reservation", slog.String("event_id", ev.ID), slog.String("payment_intent", obj.ID))
			result.Unmatched = true
			s.recordEvent(ctx, ev, payload)
			return result, nil
		}
	case payments.EventRefundSucceeded, payments.EventChargeRefunded:
		var obj payments.RefundObject
		if err := ev.Decode(&obj); err != nil {
			return nil, Validation("error.invalidPayload", "invalid payload")
		}
		res, err = s.MarkRefunded(ctx, obj.PaymentIntent)
	default:
		slog.Info("webhook event ignored", slog.String("event_id", ev.ID), slog.String("type", ev.Type))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Handled = true
	result.ReservationID = res.ReservationID
	result.Status = res.Status
	s.recordEvent(ctx, ev, payload)
	return result, nil
}

func (s *ReservationService) recordEvent(ctx context.Context, ev *payments.Event, payload []byte) {
	rec := models.PaymentEvent{EventID: ev.ID, Type: ev.Type, Payload: payload, ProcessedAt: s.Now()}
	if err := s.DB.WithContext(ctx).Create(&rec).Error; err != nil && !isDuplicate(err) {
		slog.Error("store webhook event", slog.String("event_id", ev.ID), slog.Any("error", err))
	}
}

// Confirm marks the reservation matched by where/arg as paid, puts it on the
// property calendar and notifies guest and owner. Calendar and notification
// failures are logged and never undo the payment.
//
// The room row is locked while the nights are checked again: a payment for
// nights another paid reservation already holds, or for a reservation that
// expired before it was paid, is refunded and the reservation canceled.
func (s *ReservationService) Confirm(ctx context.Context, where string, arg any, paymentIntent string) (*models.Reservation, error) {
	var res models.Reservation
	changed, rejected := false, false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(where, arg).First(&res).Error; err != nil {
			return dbError(err, NotFound("error.reservationNotFound", "no reservation matches the payment"))
		}
		var room models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&room, res.RoomID).Error; err != nil {
			return dbError(err, NotFound("error.roomNotFound", "room not found"))
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, res.ID).Error; err != nil {
			return dbError(err, nil)
		}

		now := s.Now()
		updates := map[string]any{}
		if paymentIntent != "" {
			updates["payment_intent_id"] = paymentIntent
			res.PaymentIntentID = &paymentIntent
		}
		switch res.Status {
		case models.StatusPaid:
			return nil
		case models.StatusCanceled:
			if res.PaidAt != nil || paymentIntent == "" {
				return nil
			}
			rejected = true
		default:
			taken, err := s.Availability.PaidOverlap(tx, res.RoomID, res.CheckIn, res.CheckOut, res.ID)
			if err != nil {
				return err
			}
			if taken {
				rejected = true
				updates["status"] = models.StatusCanceled
				updates["canceled_at"] = now
				res.Status = models.StatusCanceled
				res.CanceledAt = &now
			} else {
				updates["status"] = models.StatusPaid
				updates["paid_at"] = now
				res.Status = models.StatusPaid
				res.PaidAt = &now
				changed = true
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return dbError(tx.Model(&res).Updates(updates).Error, nil)
	})
	if err != nil {
		return nil, err
	}
	if rejected {
		s.rejectPayment(ctx, &res)
		return &res, nil
	}
	if !changed {
		return &res, nil
	}

	if err := s.DB.WithContext(ctx).Preload("Calendars").Preload("Structure").First(&res.Room, res.RoomID).Error; err != nil {
		slog.Error("load room for confirmation", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
	}
	s.addCalendarEvent(ctx, &res)
	s.Metrics.RecordReservation("paid")
	slog.Info("reservation paid", slog.String("reservation_id", res.ReservationID))
	s.Notifier.ReservationConfirmed(ctx, s.view(res))
	return &res, nil
}

// rejectPayment refunds a payment that arrived for nights the reservation no
// longer holds.
func (s *ReservationService) rejectPayment(ctx context.Context, res *models.Reservation) {
	slog.Error("payment received for nights no longer held, refunding",
		slog.String("reservation_id", res.ReservationID),
		slog.Uint64("room_id", uint64(res.RoomID)),
		slog.String("check_in", res.CheckIn.Format(models.DateLayout)),
		slog.String("check_out", res.CheckOut.Format(models.DateLayout)),
	)
	s.Metrics.RecordReservation("rejected")
	s.loadRoom(ctx, res)
	if res.PaymentIntentID != nil && *res.PaymentIntentID != "" && res.RefundedAt == nil {
		out := &CancelResult{Reservation: res}
		s.refund(ctx, res, out)
	}
	s.Notifier.ReservationCanceled(ctx, s.view(*res))
}

func (s *ReservationService) calendarFor(room models.Room) string {
	if id := room.DirectCalendar(); id != "" {
		return id
	}
	return s.Config.DefaultCalendar
}

func (s *ReservationService) addCalendarEvent(ctx context.Context, res *models.Reservation) {
	calID := s.calendarFor(res.Room)
	if s.Calendar == nil || calID == "" {
		return
	}
	ev := calendar.AllDayEvent(
		fmt.Sprintf("%s - %s", res.Room.Name, res.GuestName()),
		fmt.Sprintf("Reservation %s\nGuests: %d\nEmail: %s\nPhone: %s", res.ReservationID, res.NumberOfPeople, res.Email, res.Phone),
		res.CheckIn, res.CheckOut,
	)
	began := time.Now()
	eventID, err := s.Calendar.InsertEvent(ctx, calID, ev)
	s.Metrics.RecordExternalCall("calendar", err, time.Since(began))
	if err != nil {
		slog.Error("calendar event not created", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
		return
	}
	res.EventID, res.EventCalendarID = &eventID, &calID
	err = s.DB.WithContext(ctx).Model(res).Updates(map[string]any{"event_id": eventID, "event_calendar_id": calID}).Error
	if err != nil {
		slog.Error("store calendar event id", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
	}
}

// MarkRefunded records a refund reported by the provider.
func (s *ReservationService) MarkRefunded(ctx context.Context, paymentIntent string) (*models.Reservation, error) {
	if paymentIntent == "" {
		return nil, NotFound("error.reservationNotFound", "no reservation matches the refund")
	}
	var res models.Reservation
	err := s.DB.WithContext(ctx).Where("payment_intent_id = ?", paymentIntent).First(&res).Error
	if err != nil {
		return nil, dbError(err, NotFound("error.reservationNotFound", "no reservation matches the refund"))
	}
	if res.RefundedAt != nil {
		return &res, nil
	}
	now := s.Now()
	updates := map[string]any{"refunded_at": now}
	if res.Status != models.StatusCanceled {
		updates["status"] = models.StatusCanceled
		updates["canceled_at"] = now
	}
	if err := s.DB.WithContext(ctx).Model(&res).Updates(updates).Error; err != nil {
		return nil, dbError(err, nil)
	}
	res.RefundedAt = &now
	res.Status = models.StatusCanceled
	s.Metrics.RecordReservation("refunded")
	s.loadRoom(ctx, &res)
	s.Notifier.RefundIssued(ctx, s.view(res))
	return &res, nil
}

type CancelResult struct {
	Reservation *models.Reservation `json:"reservation"`
	Refunded    bool                `json:"refunded"`
	RefundError string              `json:"refund_error,omitempty"`
}

// Cancel removes the calendar event and cancels the reservation. Nothing
// changes unless the event is removed first.
func (s *ReservationService) Cancel(ctx context.Context, p access.Principal, reservationID string) (*CancelResult, error) {
	var res models.Reservation
	err := s.DB.WithContext(ctx).Preload("Room.Calendars").Preload("Room.Structure").
		Where("reservation_id = ?", reservationID).First(&res).Error
	if err != nil {
		return nil, dbError(err, NotFound("error.reservationNotFound", "reservation not found"))
	}
	if d := access.OwnerOrAdmin(res.UserID)(p); d != nil {
		return nil, Forbidden(d.Code, d.Message)
	}
	if res.Status == models.StatusCanceled {
		return nil, Conflict("error.alreadyCanceled", "reservation is already canceled")
	}
	if !res.HasPaymentReference() {
		return nil, Validation("error.noPaymentReference", "reservation has no payment to cancel")
	}
	if res.EventID == nil || *res.EventID == "" {
		return nil, Conflict("error.noCalendarEvent", "reservation has no calendar event to remove")
	}
	if s.Calendar == nil {
		return nil, External("error.calendar", "calendar is not configured", nil)
	}

	calID := s.calendarFor(res.Room)
	if res.EventCalendarID != nil && *res.EventCalendarID != "" {
		calID = *res.EventCalendarID
	}
	began := time.Now()
	err = s.Calendar.DeleteEvent(ctx, calID, *res.EventID)
	s.Metrics.RecordExternalCall("calendar", err, time.Since(began))
	if err != nil {
		slog.Error("calendar event not removed, reservation unchanged", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
		return nil, External("error.calendar", "could not remove the calendar event", err)
	}

	now := s.Now()
	wasPaid := res.Status == models.StatusPaid
	upd := s.DB.WithContext(ctx).Model(&res).Where("status <> ?", models.StatusCanceled).
		Updates(map[string]any{"status": models.StatusCanceled, "canceled_at": now})
	if upd.Error != nil {
		return nil, dbError(upd.Error, nil)
	}
	if upd.RowsAffected == 0 {
		return nil, Conflict("error.alreadyCanceled", "reservation is already canceled")
	}
	res.Status = models.StatusCanceled
	res.CanceledAt = &now
	s.Metrics.RecordReservation("canceled")
	slog.Info("reservation canceled", slog.String("reservation_id", res.ReservationID), slog.Uint64("by_user", uint64(p.UserID)))

	out := &CancelResult{Reservation: &res}
	if wasPaid && res.PaymentIntentID != nil && *res.PaymentIntentID != "" {
		s.refund(ctx, &res, out)
	}
	s.Notifier.ReservationCanceled(ctx, s.view(res))
	return out, nil
}

func (s *ReservationService) refund(ctx context.Context, res *models.Reservation, out *CancelResult) {
	if s.Payments == nil {
		out.RefundError = "payments are not configured"
		return
	}
	began := time.Now()
	_, err := s.Payments.RefundPayment(ctx, *res.PaymentIntentID)
	s.Metrics.RecordExternalCall("payments", err, time.Since(began))
	if err != nil {
		slog.Error("refund failed", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
		out.RefundError = "refund could not be issued, it will be handled manually"
		return
	}
	now := s.Now()
	if err := s.DB.WithContext(ctx).Model(res).Update("refunded_at", now).Error; err != nil {
		slog.Error("store refund time", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
	}
	res.RefundedAt = &now
	out.Refunded = true
	s.Metrics.RecordReservation("refunded")
	s.Notifier.RefundIssued(ctx, s.view(*res))
}

type ReservationFilter struct {
	UserID      *uint
	RoomID      *uint
	Status      string
	CheckIn     *time.Time
	CheckOut    *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Search      string
	Ordering    string
	Page        int
	PageSize    int
}

var reservationOrdering = map[string]string{
	"check_in":   "check_in",
	"check_out":  "check_out",
	"created_at": "created_at",
	"total_cost": "total_cost",
}

// orderClause turns "field" or "-field" into an ORDER BY clause limited to allowed columns.
func orderClause(raw string, allowed map[string]string, def string) string {
	desc := strings.HasPrefix(raw, "-")
	col, ok := allowed[strings.TrimPrefix(raw, "-")]
	if !ok {
		return def
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

func paginate(page, size int) (offset, limit int) {
	if size <= 0 || size > 100 {
		size = 20
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * size, size
}

// List returns reservations visible to p: customers only see their own.
func (s *ReservationService) List(ctx context.Context, p access.Principal, f ReservationFilter) ([]models.Reservation, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Reservation{})
	if !p.IsAdmin() {
		q = q.Where("user_id = ?", p.UserID)
	} else if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.RoomID != nil {
		q = q.Where("room_id = ?", *f.RoomID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", strings.ToUpper(f.Status))
	}
	if f.CheckIn != nil {
		q = q.Where("check_in = ?", availability.Day(*f.CheckIn))
	}
	if f.CheckOut != nil {
		q = q.Where("check_out = ?", availability.Day(*f.CheckOut))
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("created_at < ?", *f.CreatedTo)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR reservation_id = ?", like, like, like, term)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	offset, limit := paginate(f.Page, f.PageSize)
	var rows []models.Reservation
	err := q.Order(orderClause(f.Ordering, reservationOrdering, "created_at DESC")).
		Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, Internal(err)
	}
	return rows, total, nil
}

// Get returns one reservation if p may see it.
func (s *ReservationService) Get(ctx context.Context, p access.Principal, reservationID string) (*models.Reservation, error) {
	var res models.Reservation
	err := s.DB.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&res).Error
	if err != nil {
		return nil, dbError(err, NotFound("error.reservationNotFound", "reservation not found"))
	}
	if d := access.OwnerOrAdmin(res.UserID)(p); d != nil {
		return nil, Forbidden(d.Code, d.Message)
	}
	return &res, nil
}

// ExpireStale cancels unpaid reservations whose hold is over. Those with an
// open checkout keep it until the session itself can no longer complete.
func (s *ReservationService) ExpireStale(ctx context.Context) (int64, error) {
	now := s.Now()
	plain, inCheckout := s.Availability.holdCutoffs(now)
	upd := s.DB.WithContext(ctx).Model(&models.Reservation{}).
		Where("status = ?", models.StatusUnpaid).
		Where(expiredHold, plain, inCheckout).
		Updates(map[string]any{"status": models.StatusCanceled, "canceled_at": now})
	if upd.Error != nil {
		return 0, Internal(upd.Error)
	}
	if upd.RowsAffected > 0 {
		slog.Info("expired unpaid reservations", slog.Int64("count", upd.RowsAffected))
		for i := int64(0); i < upd.RowsAffected; i++ {
			s.Metrics.RecordReservation("expired")
		}
	}
	return upd.RowsAffected, nil
}

// SendCheckinReminders notifies guests of paid reservations arriving on day.
func (s *ReservationService) SendCheckinReminders(ctx context.Context, day time.Time) (int, error) {
	var rows []models.Reservation
	err := s.DB.WithContext(ctx).Preload("Room.Structure").
		Where("status = ? AND check_in = ?", models.StatusPaid, availability.Day(day)).
		Find(&rows).Error
	if err != nil {
		return 0, Internal(err)
	}
	for _, r := range rows {
		s.Notifier.CheckinReminder(ctx, s.view(r))
	}
	return len(rows), nil
}

func (s *ReservationService) loadRoom(ctx context.Context, res *models.Reservation) {
	if res.Room.ID != 0 {
		return
	}
	if err := s.DB.WithContext(ctx).Preload("Structure").First(&res.Room, res.RoomID).Error; err != nil {
		slog.Warn("load room", slog.String("reservation_id", res.ReservationID), slog.Any("error", err))
	}
}

func (s *ReservationService) view(r models.Reservation) notify.ReservationView {
	return notify.ReservationView{
		Code:          r.ReservationID,
		GuestName:     r.GuestName(),
		Email:         r.Email,
		Phone:         r.Phone,
		RoomName:      r.Room.Name,
		StructureName: r.Room.Structure.Name,
		Address:       r.Room.Structure.Address,
		CheckIn:       r.CheckIn.Format("02/01/2006"),
		CheckOut:      r.CheckOut.Format("02/01/2006"),
		Nights:        r.Nights(),
		People:        r.NumberOfPeople,
		Total:         r.TotalCost,
		Link:          s.reservationLink(r),
	}
}
