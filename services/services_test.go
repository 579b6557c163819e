package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rental-backend/access"
	"rental-backend/calendar"
	"rental-backend/models"
	"rental-backend/notify"
	"rental-backend/payments"
	"rental-backend/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

const webhookSecret = "whsec_test"

type mockCalendar struct{ mock.Mock }

func (m *mockCalendar) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]calendar.Event, error) {
	args := m.Called(ctx, calendarID, timeMin, timeMax)
	evs, _ := args.Get(0).([]calendar.Event)
	return evs, args.Error(1)
}

func (m *mockCalendar) InsertEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	args := m.Called(ctx, calendarID, ev)
	return args.String(0), args.Error(1)
}

func (m *mockCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return m.Called(ctx, calendarID, eventID).Error(0)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error) {
	args := m.Called(ctx, p)
	s, _ := args.Get(0).(*payments.CheckoutSession)
	return s, args.Error(1)
}

func (m *mockPayments) RefundPayment(ctx context.Context, paymentIntentID string) (*payments.Refund, error) {
	args := m.Called(ctx, paymentIntentID)
	r, _ := args.Get(0).(*payments.Refund)
	return r, args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(e string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) ReservationConfirmed(_ context.Context, v notify.ReservationView) {
	n.add("confirmed:" + v.Code)
}
func (n *recordingNotifier) ReservationCanceled(_ context.Context, v notify.ReservationView) {
	n.add("canceled:" + v.Code)
}
func (n *recordingNotifier) RefundIssued(_ context.Context, v notify.ReservationView) {
	n.add("refund:" + v.Code)
}
func (n *recordingNotifier) CheckinReminder(_ context.Context, v notify.ReservationView) {
	n.add("reminder:" + v.Code)
}
func (n *recordingNotifier) EmailVerification(_ context.Context, to, _, link string) {
	n.add("verify:" + to + " " + link)
}

type fixture struct {
	db     *gorm.DB
	room   models.Room
	avail  *AvailabilityService
	svc    *ReservationService
	cal    *mockCalendar
	pay    *mockPayments
	notes  *recordingNotifier
	admin  access.Principal
	client models.User
}

func newFixture(t *testing.T, withCalendar bool) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:    db,
		room:  testutil.SeedRoom(t, db, "Dependance", 100, 4),
		pay:   &mockPayments{},
		notes: &recordingNotifier{},
	}
	if withCalendar {
		f.cal = &mockCalendar{}
		f.avail = NewAvailabilityService(db, f.cal, "primary", 15*time.Minute)
	} else {
		f.avail = NewAvailabilityService(db, nil, "primary", 15*time.Minute)
	}
	f.avail.Now = func() time.Time { return fixedNow }
	f.svc = NewReservationService(db, f.avail, ReservationConfig{FrontendURL: "https://app.example", DefaultCalendar: "primary"})
	f.svc.Payments = f.pay
	f.svc.Webhooks = payments.NewVerifier(webhookSecret, 0)
	f.svc.Notifier = f.notes

	admin := testutil.SeedUser(t, db, "admin@example.com", models.UserAdmin)
	f.admin = access.FromUser(admin)
	f.client = testutil.SeedUser(t, db, "guest@example.com", models.UserCustomer)
	return f
}

func (f *fixture) reservation(t *testing.T, in, out, status string, createdAt time.Time, mut func(*models.Reservation)) models.Reservation {
	t.Helper()
	r := models.Reservation{
		ReservationID:  uuid.NewString(),
		RoomID:         f.room.ID,
		CheckIn:        testutil.Date(t, in),
		CheckOut:       testutil.Date(t, out),
		NumberOfPeople: 2,
		Status:         status,
		FirstName:      "Anna",
		LastName:       "Bianchi",
		Email:          "anna@example.com",
		CreatedAt:      createdAt,
	}
	r.BaseCost = float64(r.Nights()) * f.room.CostPerNight
	r.TotalCost = r.BaseCost
	if mut != nil {
		mut(&r)
	}
	require.NoError(t, f.db.Create(&r).Error)
	return r
}

func (f *fixture) reload(t *testing.T, r models.Reservation) models.Reservation {
	t.Helper()
	var out models.Reservation
	require.NoError(t, f.db.First(&out, r.ID).Error)
	return out
}

func strPtr(s string) *string { return &s }

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	require.Error(t, err)
	return KindOf(err)
}

func (f *fixture) createInput(t *testing.T, in, out string) CreateReservationInput {
	return CreateReservationInput{
		RoomID:         f.room.ID,
		CheckIn:        testutil.Date(t, in),
		CheckOut:       testutil.Date(t, out),
		NumberOfPeople: 2,
		FirstName:      "Luca",
		LastName:       "Verdi",
		Email:          "luca@example.com",
	}
}

func TestCreate_TotalIsNightsTimesCost(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.svc.Create(context.Background(), f.createInput(t, "2025-06-01", "2025-06-04"))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Nights())
	assert.Equal(t, 300.0, res.TotalCost)
	assert.Equal(t, 300.0, res.BaseCost)
	assert.Equal(t, models.StatusUnpaid, res.Status)
	assert.NotEmpty(t, res.ReservationID)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tests := []struct {
		name string
		mut  func(*CreateReservationInput)
	}{
		{"checkout before checkin", func(in *CreateReservationInput) { in.CheckOut = testutil.Date(t, "2025-05-31") }},
		{"same day", func(in *CreateReservationInput) { in.CheckOut = in.CheckIn }},
		{"too long", func(in *CreateReservationInput) { in.CheckOut = testutil.Date(t, "2025-07-02") }},
		{"in the past", func(in *CreateReservationInput) { in.CheckIn = testutil.Date(t, "2025-05-01") }},
		{"no people", func(in *CreateReservationInput) { in.NumberOfPeople = 0 }},
		{"too many people", func(in *CreateReservationInput) { in.NumberOfPeople = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.createInput(t, "2025-06-01", "2025-06-04")
			tt.mut(&in)
			_, err := f.svc.Create(ctx, in)
			assert.Equal(t, KindValidation, kindOf(t, err))
		})
	}

	var count int64
	f.db.Model(&models.Reservation{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreate_RejectsOverlapButAllowsCheckoutDay(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.reservation(t, "2025-06-02", "2025-06-05", models.StatusPaid, fixedNow, nil)

	_, err := f.svc.Create(ctx, f.createInput(t, "2025-06-01", "2025-06-03"))
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindConflict, appErr.Kind)
	assert.Equal(t, []string{"2025-06-02"}, appErr.Fields["busy_dates"])

	_, err = f.svc.Create(ctx, f.createInput(t, "2025-06-05", "2025-06-07"))
	assert.NoError(t, err)
	_, err = f.svc.Create(ctx, f.createInput(t, "2025-05-30", "2025-06-02"))
	assert.NoError(t, err)
}

func TestCreate_UnavailableRoomAndUnknownRoom(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.db.Model(&f.room).Update("room_status", models.RoomUnavailable).Error)

	_, err := f.svc.Create(ctx, f.createInput(t, "2025-06-01", "2025-06-04"))
	assert.Equal(t, KindConflict, kindOf(t, err))

	in := f.createInput(t, "2025-06-01", "2025-06-04")
	in.RoomID = 999
	_, err = f.svc.Create(ctx, in)
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func seedDiscount(t *testing.T, db *gorm.DB, code string, pct float64, from, to string, minNights int) models.Discount {
	t.Helper()
	d := models.Discount{
		Code:      code,
		Percent:   pct,
		StartDate: testutil.Date(t, from),
		EndDate:   testutil.Date(t, to),
		MinNights: minNights,
	}
	require.NoError(t, db.Create(&d).Error)
	return d
}

func TestApplyDiscount(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	seedDiscount(t, f.db, "JUNE10", 10, "2025-06-01", "2025-06-30", 3)

	three := f.reservation(t, "2025-06-10", "2025-06-13", models.StatusUnpaid, fixedNow, nil)
	got, err := f.svc.ApplyDiscount(ctx, access.Anonymous, three.ReservationID, "JUNE10")
	require.NoError(t, err)
	assert.Equal(t, 270.0, got.TotalCost)
	require.NotNil(t, got.CouponUsed)
	assert.Equal(t, "JUNE10", *got.CouponUsed)

	again, err := f.svc.ApplyDiscount(ctx, access.Anonymous, three.ReservationID, "JUNE10")
	require.NoError(t, err)
	assert.Equal(t, 270.0, again.TotalCost)
	assert.Equal(t, 270.0, f.reload(t, three).TotalCost)
	assert.Equal(t, 300.0, f.reload(t, three).BaseCost)

	two := f.reservation(t, "2025-06-20", "2025-06-22", models.StatusUnpaid, fixedNow, nil)
	_, err = f.svc.ApplyDiscount(ctx, access.Anonymous, two.ReservationID, "JUNE10")
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindValidation, appErr.Kind)
	assert.Equal(t, "discount not valid for the reservation dates", appErr.Message)
	assert.Equal(t, 200.0, f.reload(t, two).TotalCost)

	outside := f.reservation(t, "2025-06-28", "2025-07-02", models.StatusUnpaid, fixedNow, nil)
	_, err = f.svc.ApplyDiscount(ctx, access.Anonymous, outside.ReservationID, "JUNE10")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.svc.ApplyDiscount(ctx, access.Anonymous, three.ReservationID, "NOPE")
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func TestApplyDiscount_RoomScopeAndPaid(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	other := testutil.SeedRoom(t, f.db, "Suite", 150, 2)
	d := seedDiscount(t, f.db, "SUITE", 20, "2025-06-01", "2025-06-30", 1)
	require.NoError(t, f.db.Model(&d).Association("Rooms").Append(&other))

	r := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusUnpaid, fixedNow, nil)
	_, err := f.svc.ApplyDiscount(ctx, access.Anonymous, r.ReservationID, "SUITE")
	assert.Equal(t, KindValidation, kindOf(t, err))

	paid := f.reservation(t, "2025-06-14", "2025-06-16", models.StatusPaid, fixedNow, nil)
	_, err = f.svc.ApplyDiscount(ctx, access.Anonymous, paid.ReservationID, "SUITE")
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestCreate_WithCoupon(t *testing.T) {
	f := newFixture(t, false)
	seedDiscount(t, f.db, "JUNE10", 10, "2025-06-01", "2025-06-30", 3)

	in := f.createInput(t, "2025-06-01", "2025-06-04")
	in.Coupon = "JUNE10"
	res, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 270.0, res.TotalCost)

	in = f.createInput(t, "2025-06-10", "2025-06-11")
	in.Coupon = "JUNE10"
	_, err = f.svc.Create(context.Background(), in)
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestAvailability_StaleUnpaidDoesNotBlock(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.reservation(t, "2025-07-01", "2025-07-03", models.StatusUnpaid, fixedNow.Add(-20*time.Minute), nil)

	got, err := f.avail.RoomAvailability(ctx, f.room.ID, testutil.Date(t, "2025-07-01"), testutil.Date(t, "2025-07-03"))
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Empty(t, got.BusyDates)

	f.reservation(t, "2025-07-01", "2025-07-03", models.StatusUnpaid, fixedNow.Add(-5*time.Minute), nil)
	got, err = f.avail.RoomAvailability(ctx, f.room.ID, testutil.Date(t, "2025-07-01"), testutil.Date(t, "2025-07-03"))
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, []string{"2025-07-01", "2025-07-02"}, got.BusyDates)
}

func TestAvailability_CanceledDoesNotBlock(t *testing.T) {
	f := newFixture(t, false)
	f.reservation(t, "2025-07-01", "2025-07-03", models.StatusCanceled, fixedNow, nil)

	got, err := f.avail.RoomAvailability(context.Background(), f.room.ID, testutil.Date(t, "2025-07-01"), testutil.Date(t, "2025-07-03"))
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func allDay(summary, start, end string) calendar.Event {
	return calendar.Event{ID: summary, Summary: summary, Start: calendar.EventTime{Date: start}, End: calendar.EventTime{Date: end}}
}

func TestAvailability_CalendarEventNamingRoomBlocks(t *testing.T) {
	f := newFixture(t, true)
	f.cal.On("ListEvents", mock.Anything, "primary", mock.Anything, mock.Anything).
		Return([]calendar.Event{
			allDay("Dependance - Rossi", "2025-08-10", "2025-08-12"),
			allDay("Suite - Neri", "2025-08-11", "2025-08-20"),
		}, nil)

	got, err := f.avail.RoomAvailability(context.Background(), f.room.ID, testutil.Date(t, "2025-08-11"), testutil.Date(t, "2025-08-12"))
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Contains(t, got.BusyDates, "2025-08-11")
	assert.NotContains(t, got.BusyDates, "2025-08-15")

	got, err = f.avail.RoomAvailability(context.Background(), f.room.ID, testutil.Date(t, "2025-08-12"), testutil.Date(t, "2025-08-14"))
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestAvailability_ChannelCalendarBlocksEveryEvent(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.db.Create(&models.RoomCalendar{RoomID: f.room.ID, Channel: "booking", CalendarID: "booking-cal"}).Error)
	f.cal.On("ListEvents", mock.Anything, "booking-cal", mock.Anything, mock.Anything).
		Return([]calendar.Event{allDay("CLOSED - Not available", "2025-09-01", "2025-09-03")}, nil)

	got, err := f.avail.RoomAvailability(context.Background(), f.room.ID, testutil.Date(t, "2025-09-02"), testutil.Date(t, "2025-09-04"))
	require.NoError(t, err)
	assert.False(t, got.Available)
	f.cal.AssertNotCalled(t, "ListEvents", mock.Anything, "primary", mock.Anything, mock.Anything)
}

func TestAvailability_CalendarFailureIsExternal(t *testing.T) {
	f := newFixture(t, true)
	f.cal.On("ListEvents", mock.Anything, "primary", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := f.avail.RoomAvailability(context.Background(), f.room.ID, testutil.Date(t, "2025-08-11"), testutil.Date(t, "2025-08-12"))
	assert.Equal(t, KindExternal, kindOf(t, err))
	assert.Equal(t, 500, KindExternal.HTTPStatus())
}

func TestSearchAvailableRooms(t *testing.T) {
	f := newFixture(t, false)
	suite := testutil.SeedRoom(t, f.db, "Suite", 80, 2)
	f.reservation(t, "2025-06-01", "2025-06-05", models.StatusPaid, fixedNow, nil)

	rooms, err := f.avail.SearchAvailableRooms(context.Background(), testutil.Date(t, "2025-06-02"), testutil.Date(t, "2025-06-03"), 2)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, suite.ID, rooms[0].ID)

	rooms, err = f.avail.SearchAvailableRooms(context.Background(), testutil.Date(t, "2025-06-10"), testutil.Date(t, "2025-06-12"), 3)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, f.room.ID, rooms[0].ID)
}

func signedEvent(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	body := []byte(payload)
	return body, payments.SignatureFor(webhookSecret, time.Now(), body)
}

func TestWebhook_UnknownSessionIsNotFound(t *testing.T) {
	f := newFixture(t, false)
	r := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusUnpaid, fixedNow, func(r *models.Reservation) {
		r.PaymentSessionID = strPtr("cs_known")
	})

	body, sig := signedEvent(t, `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_unknown","payment_intent":"pi_x"}}}`)
	_, err := f.svc.HandleWebhook(context.Background(), body, sig)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindNotFound, appErr.Kind)
	after := f.reload(t, r)
	assert.Equal(t, models.StatusUnpaid, after.Status)
	assert.Nil(t, after.PaymentIntentID)
	assert.Empty(t, f.notes.Events())

	var events int64
	f.db.Model(&models.PaymentEvent{}).Count(&events)
	assert.Zero(t, events)
}

func TestWebhook_CheckoutCompletedConfirms(t *testing.T) {
	f := newFixture(t, true)
	r := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusUnpaid, fixedNow, func(r *models.Reservation) {
		r.PaymentSessionID = strPtr("cs_1")
	})
	f.cal.On("InsertEvent", mock.Anything, "primary", mock.MatchedBy(func(ev calendar.Event) bool {
		return ev.Start.Date == "2025-06-10" && ev.End.Date == "2025-06-12" && strings.Contains(ev.Summary, "Dependance")
	})).Return("ev_1", nil).Once()

	body, sig := signedEvent(t, `{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_1"}}}`)
	out, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, r.ReservationID, out.ReservationID)

	after := f.reload(t, r)
	assert.Equal(t, models.StatusPaid, after.Status)
	require.NotNil(t, after.PaidAt)
	require.NotNil(t, after.EventID)
	assert.Equal(t, "ev_1", *after.EventID)
	assert.Equal(t, "pi_1", *after.PaymentIntentID)
	assert.Equal(t, []string{"confirmed:" + r.ReservationID}, f.notes.Events())

	dup, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	f.cal.AssertNumberOfCalls(t, "InsertEvent", 1)
}

func TestWebhook_CalendarFailureKeepsPayment(t *testing.T) {
	f := newFixture(t, true)
	r := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusUnpaid, fixedNow, func(r *models.Reservation) {
		r.PaymentIntentID = strPtr("pi_2")
	})
	f.cal.On("InsertEvent", mock.Anything, "primary", mock.Anything).Return("", errors.New("quota"))

	body, sig := signedEvent(t, `{"id":"evt_3","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","status":"succeeded"}}}`)
	_, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)

	after := f.reload(t, r)
	assert.Equal(t, models.StatusPaid, after.Status)
	assert.Nil(t, after.EventID)
}

func TestWebhook_RejectsBadSignatureAndIgnoresUnknownTypes(t *testing.T) {
	f := newFixture(t, false)
	body := []byte(`{"id":"evt_4","type":"checkout.session.completed","data":{"object":{"id":"cs"}}}`)
	_, err := f.svc.HandleWebhook(context.Background(), body, "t=1,v1=deadbeef")
	assert.Equal(t, KindValidation, kindOf(t, err))

	body, sig := signedEvent(t, `{"id":"evt_5","type":"customer.created","data":{"object":{}}}`)
	out, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.False(t, out.Handled)
}

func TestWebhook_RefundMarksReservation(t *testing.T) {
	f := newFixture(t, false)
	r := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusPaid, fixedNow, func(r *models.Reservation) {
		r.PaymentIntentID = strPtr("pi_3")
	})

	body, sig := signedEvent(t, `{"id":"evt_6","type":"refund.succeeded","data":{"object":{"id":"re_1","payment_intent":"pi_3","status":"succeeded"}}}`)
	_, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)

	after := f.reload(t, r)
	assert.Equal(t, models.StatusCanceled, after.Status)
	assert.NotNil(t, after.RefundedAt)
	assert.Equal(t, []string{"refund:" + r.ReservationID}, f.notes.Events())
}

func paidReservation(t *testing.T, f *fixture, owner uint, eventID *string) models.Reservation {
	return f.reservation(t, "2025-06-10", "2025-06-12", models.StatusPaid, fixedNow, func(r *models.Reservation) {
		r.UserID = &owner
		r.PaymentIntentID = strPtr("pi_7")
		r.EventID = eventID
		r.EventCalendarID = strPtr("cal-x")
	})
}

func TestCancel_WithoutCalendarEventLeavesStatus(t *testing.T) {
	f := newFixture(t, true)
	r := paidReservation(t, f, f.client.ID, nil)

	_, err := f.svc.Cancel(context.Background(), access.FromUser(f.client), r.ReservationID)
	assert.Equal(t, KindConflict, kindOf(t, err))
	assert.Equal(t, models.StatusPaid, f.reload(t, r).Status)
	f.pay.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything)
}

func TestCancel_CalendarDeleteFailureLeavesStatus(t *testing.T) {
	f := newFixture(t, true)
	r := paidReservation(t, f, f.client.ID, strPtr("ev_7"))
	f.cal.On("DeleteEvent", mock.Anything, "cal-x", "ev_7").Return(errors.New("boom"))

	_, err := f.svc.Cancel(context.Background(), f.admin, r.ReservationID)
	assert.Equal(t, KindExternal, kindOf(t, err))
	assert.Equal(t, models.StatusPaid, f.reload(t, r).Status)
	assert.Empty(t, f.notes.Events())
}

func TestCancel_RemovesEventRefundsAndNotifies(t *testing.T) {
	f := newFixture(t, true)
	r := paidReservation(t, f, f.client.ID, strPtr("ev_7"))
	f.cal.On("DeleteEvent", mock.Anything, "cal-x", "ev_7").Return(nil).Once()
	f.pay.On("RefundPayment", mock.Anything, "pi_7").Return(&payments.Refund{ID: "re_7", Status: "succeeded"}, nil).Once()

	out, err := f.svc.Cancel(context.Background(), access.FromUser(f.client), r.ReservationID)
	require.NoError(t, err)
	assert.True(t, out.Refunded)
	assert.Empty(t, out.RefundError)

	after := f.reload(t, r)
	assert.Equal(t, models.StatusCanceled, after.Status)
	assert.NotNil(t, after.CanceledAt)
	assert.NotNil(t, after.RefundedAt)
	assert.ElementsMatch(t, []string{"refund:" + r.ReservationID, "canceled:" + r.ReservationID}, f.notes.Events())
	f.cal.AssertExpectations(t)
	f.pay.AssertExpectations(t)
}

func TestCancel_RefundFailureIsReported(t *testing.T) {
	f := newFixture(t, true)
	r := paidReservation(t, f, f.client.ID, strPtr("ev_7"))
	f.cal.On("DeleteEvent", mock.Anything, "cal-x", "ev_7").Return(nil)
	f.pay.On("RefundPayment", mock.Anything, "pi_7").Return(nil, errors.New("card_declined"))

	out, err := f.svc.Cancel(context.Background(), f.admin, r.ReservationID)
	require.NoError(t, err)
	assert.False(t, out.Refunded)
	assert.NotEmpty(t, out.RefundError)
	assert.Equal(t, models.StatusCanceled, f.reload(t, r).Status)
}

func TestCancel_Permissions(t *testing.T) {
	f := newFixture(t, true)
	r := paidReservation(t, f, f.client.ID, strPtr("ev_7"))
	stranger := testutil.SeedUser(t, f.db, "other@example.com", models.UserCustomer)

	_, err := f.svc.Cancel(context.Background(), access.FromUser(stranger), r.ReservationID)
	assert.Equal(t, KindForbidden, kindOf(t, err))
	_, err = f.svc.Cancel(context.Background(), access.Anonymous, r.ReservationID)
	assert.Equal(t, KindForbidden, kindOf(t, err))

	noPayment := f.reservation(t, "2025-06-20", "2025-06-22", models.StatusUnpaid, fixedNow, func(r *models.Reservation) {
		owner := f.client.ID
		r.UserID = &owner
	})
	_, err = f.svc.Cancel(context.Background(), f.admin, noPayment.ReservationID)
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newFixture(t, false)
	r := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusUnpaid, fixedNow.Add(-time.Minute), nil)
	f.pay.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p payments.CheckoutParams) bool {
		return p.ReservationID == r.ReservationID && p.Amount == 200 && p.Currency == "eur" &&
			strings.HasPrefix(p.SuccessURL, "https://app.example/reservations/")
	})).Return(&payments.CheckoutSession{ID: "cs_9", URL: "https://pay.example/cs_9"}, nil)

	out, err := f.svc.CreateCheckoutSession(context.Background(), access.Anonymous, r.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_9", out.URL)
	after := f.reload(t, r)
	require.NotNil(t, after.PaymentSessionID)
	assert.Equal(t, "cs_9", *after.PaymentSessionID)

	stale := f.reservation(t, "2025-06-20", "2025-06-22", models.StatusUnpaid, fixedNow.Add(-time.Hour), nil)
	_, err = f.svc.CreateCheckoutSession(context.Background(), access.Anonymous, stale.ReservationID)
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, false)
	stale := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusUnpaid, fixedNow.Add(-20*time.Minute), nil)
	inCheckout := f.reservation(t, "2025-06-14", "2025-06-16", models.StatusUnpaid, fixedNow.Add(-20*time.Minute), func(r *models.Reservation) {
		r.PaymentSessionID = strPtr("cs_open")
	})
	fresh := f.reservation(t, "2025-06-20", "2025-06-22", models.StatusUnpaid, fixedNow.Add(-time.Minute), nil)
	paid := f.reservation(t, "2025-06-24", "2025-06-26", models.StatusPaid, fixedNow.Add(-48*time.Hour), nil)

	n, err := f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, models.StatusCanceled, f.reload(t, stale).Status)
	assert.Equal(t, models.StatusUnpaid, f.reload(t, inCheckout).Status)
	assert.Equal(t, models.StatusUnpaid, f.reload(t, fresh).Status)
	assert.Equal(t, models.StatusPaid, f.reload(t, paid).Status)
}

func TestSendCheckinReminders(t *testing.T) {
	f := newFixture(t, false)
	today := f.reservation(t, "2025-06-10", "2025-06-12", models.StatusPaid, fixedNow, nil)
	f.reservation(t, "2025-06-10", "2025-06-12", models.StatusCanceled, fixedNow, nil)
	f.reservation(t, "2025-06-11", "2025-06-12", models.StatusPaid, fixedNow, nil)

	n, err := f.svc.SendCheckinReminders(context.Background(), testutil.Date(t, "2025-06-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"reminder:" + today.ReservationID}, f.notes.Events())
}

func TestList_CustomersSeeOwnReservations(t *testing.T) {
	f := newFixture(t, false)
	own := f.client.ID
	f.reservation(t, "2025-06-10", "2025-06-12", models.StatusPaid, fixedNow, func(r *models.Reservation) { r.UserID = &own })
	f.reservation(t, "2025-06-14", "2025-06-16", models.StatusPaid, fixedNow, nil)

	rows, total, err := f.svc.List(context.Background(), access.FromUser(f.client), ReservationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)

	_, total, err = f.svc.List(context.Background(), f.admin, ReservationFilter{Ordering: "-check_in"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
