package services

import (
	"context"
	"log/slog"
	"time"

	"rental-backend/availability"
	"rental-backend/metrics"
	"rental-backend/models"

	"gorm.io/gorm"
)

// AvailabilityService computes busy dates from local reservations and the
// external calendars bound to each room.
type AvailabilityService struct {
	DB              *gorm.DB
	Calendar        CalendarClient // nil skips the external check
	DefaultCalendar string
	Grace           time.Duration
	Metrics         metrics.Recorder
	Now             func() time.Time
}

func NewAvailabilityService(db *gorm.DB, cal CalendarClient, defaultCalendar string, grace time.Duration) *AvailabilityService {
	return &AvailabilityService{
		DB:              db,
		Calendar:        cal,
		DefaultCalendar: defaultCalendar,
		Grace:           grace,
		Metrics:         metrics.Nop{},
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// RoomAvailability is the verdict for one room and range.
type RoomAvailability struct {
	RoomID    uint     `json:"room_id"`
	CheckIn   string   `json:"check_in"`
	CheckOut  string   `json:"check_out"`
	Available bool     `json:"available"`
	BusyDates []string `json:"busy_dates"`
}

// expiredHold matches unpaid reservations that no longer hold their dates.
// Without a checkout session the hold is the grace window. With one it lasts
// until the session can no longer complete: sessions are only opened inside
// the grace window and live checkoutSessionTTL.
const expiredHold = "((payment_session_id IS NULL AND created_at < ?) OR (payment_session_id IS NOT NULL AND created_at < ?))"

func (s *AvailabilityService) holdCutoffs(now time.Time) (plain, inCheckout time.Time) {
	plain = now.Add(-s.Grace)
	return plain, plain.Add(-checkoutSessionTTL)
}

// blockingReservations selects reservations that occupy the room somewhere in
// [start, end]. Canceled ones and unpaid ones whose hold expired are ignored.
func (s *AvailabilityService) blockingReservations(tx *gorm.DB, roomID uint, start, end time.Time) *gorm.DB {
	plain, inCheckout := s.holdCutoffs(s.Now())
	return tx.Model(&models.Reservation{}).
		Where("room_id = ?", roomID).
		Where("check_in <= ? AND check_out >= ?", end, start).
		Where("status <> ?", models.StatusCanceled).
		Where("NOT (status = ? AND "+expiredHold+")", models.StatusUnpaid, plain, inCheckout)
}

// PaidOverlap reports whether another paid reservation shares a night with
// [checkIn, checkOut).
func (s *AvailabilityService) PaidOverlap(tx *gorm.DB, roomID uint, checkIn, checkOut time.Time, excludeID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.Reservation{}).
		Where("room_id = ? AND status = ? AND id <> ?", roomID, models.StatusPaid, excludeID).
		Where("check_in < ? AND check_out > ?", checkOut, checkIn).
		Count(&n).Error
	if err != nil {
		return false, Internal(err)
	}
	return n > 0, nil
}

// LocalBusyDates expands blocking reservations into busy days. tx may be a
// transaction; excludeID skips one reservation.
func (s *AvailabilityService) LocalBusyDates(tx *gorm.DB, roomID uint, start, end time.Time, excludeID uint) (availability.DateSet, error) {
	if tx == nil {
		tx = s.DB
	}
	q := s.blockingReservations(tx, roomID, start, end)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var rows []models.Reservation
	if err := q.Select("id", "check_in", "check_out").Find(&rows).Error; err != nil {
		return nil, Internal(err)
	}
	busy := availability.NewDateSet()
	for _, r := range rows {
		busy.AddRange(r.CheckIn, r.CheckOut)
	}
	return busy, nil
}

type roomCalendar struct {
	id       string
	filtered bool
}

func (s *AvailabilityService) calendarsFor(room models.Room) []roomCalendar {
	var out []roomCalendar
	for _, c := range room.Calendars {
		if c.CalendarID == "" {
			continue
		}
		out = append(out, roomCalendar{id: c.CalendarID, filtered: c.Channel == models.ChannelDirect})
	}
	if len(out) == 0 && s.DefaultCalendar != "" {
		out = append(out, roomCalendar{id: s.DefaultCalendar, filtered: true})
	}
	return out
}

// ExternalBusyDates reads every calendar bound to the room. The direct
// calendar is shared by the whole property so only events naming the room
// count; channel calendars belong to the room and every event blocks it.
func (s *AvailabilityService) ExternalBusyDates(ctx context.Context, room models.Room, start, end time.Time) (availability.DateSet, error) {
	busy := availability.NewDateSet()
	if s.Calendar == nil {
		return busy, nil
	}
	timeMax := end.AddDate(0, 0, 1)
	for _, cal := range s.calendarsFor(room) {
		began := time.Now()
		events, err := s.Calendar.ListEvents(ctx, cal.id, start, timeMax)
		s.Metrics.RecordExternalCall("calendar", err, time.Since(began))
		if err != nil {
			slog.Error("calendar list failed", slog.Uint64("room_id", uint64(room.ID)), slog.String("calendar", cal.id), slog.Any("error", err))
			return nil, External("error.calendar", "could not read the room calendar", err)
		}
		for _, ev := range events {
			if cal.filtered && !ev.Mentions(room.Name) {
				continue
			}
			days, err := ev.BusyDays()
			if err != nil {
				slog.Warn("skipping calendar event", slog.String("event_id", ev.ID), slog.Any("error", err))
				continue
			}
			busy = busy.Union(days)
		}
	}
	return busy, nil
}

// BusyDates is the union of local and external busy days for the room over [start, end].
func (s *AvailabilityService) BusyDates(ctx context.Context, room models.Room, start, end time.Time) (availability.DateSet, error) {
	local, err := s.LocalBusyDates(nil, room.ID, start, end, 0)
	if err != nil {
		return nil, err
	}
	external, err := s.ExternalBusyDates(ctx, room, start, end)
	if err != nil {
		return nil, err
	}
	return local.Union(external), nil
}

func (s *AvailabilityService) loadRoom(roomID uint) (models.Room, error) {
	var room models.Room
	err := s.DB.Preload("Calendars").First(&room, roomID).Error
	return room, dbError(err, NotFound("error.roomNotFound", "room not found"))
}

func validateRange(checkIn, checkOut time.Time) error {
	if !checkIn.Before(checkOut) {
		return Validation("error.invalidDates", "check_out must be after check_in").
			WithField("check_out", "must be after check_in")
	}
	return nil
}

// RoomAvailability reports whether the room is free for [checkIn, checkOut).
func (s *AvailabilityService) RoomAvailability(ctx context.Context, roomID uint, checkIn, checkOut time.Time) (*RoomAvailability, error) {
	checkIn, checkOut = availability.Day(checkIn), availability.Day(checkOut)
	if err := validateRange(checkIn, checkOut); err != nil {
		return nil, err
	}
	room, err := s.loadRoom(roomID)
	if err != nil {
		return nil, err
	}
	busy, err := s.BusyDates(ctx, room, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	return &RoomAvailability{
		RoomID:    room.ID,
		CheckIn:   checkIn.Format(models.DateLayout),
		CheckOut:  checkOut.Format(models.DateLayout),
		Available: availability.IsAvailable(busy, checkIn, checkOut),
		BusyDates: busy.Sorted(),
	}, nil
}

// SearchAvailableRooms lists open rooms that fit people and are free for the range.
func (s *AvailabilityService) SearchAvailableRooms(ctx context.Context, checkIn, checkOut time.Time, people int) ([]models.Room, error) {
	checkIn, checkOut = availability.Day(checkIn), availability.Day(checkOut)
	if err := validateRange(checkIn, checkOut); err != nil {
		return nil, err
	}
	if people < 1 {
		people = 1
	}
	var rooms []models.Room
	err := s.DB.Preload("Calendars").Preload("Images").
		Where("room_status = ? AND max_people >= ?", models.RoomAvailable, people).
		Order("cost_per_night ASC, id ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, Internal(err)
	}
	out := make([]models.Room, 0, len(rooms))
	for _, room := range rooms {
		busy, err := s.BusyDates(ctx, room, checkIn, checkOut)
		if err != nil {
			return nil, err
		}
		if availability.IsAvailable(busy, checkIn, checkOut) {
			out = append(out, room)
		}
	}
	return out, nil
}
