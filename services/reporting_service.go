package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"rental-backend/access"
	"rental-backend/availability"
	"rental-backend/metrics"
	"rental-backend/models"
	"rental-backend/reporting"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AlloggiatiGateway is the police lodging service.
type AlloggiatiGateway interface {
	GenerateToken(ctx context.Context, user, password, wsKey string) (*reporting.AccessToken, error)
	Send(ctx context.Context, user, token string, lines []string) (*reporting.SendResult, error)
}

// tokenSkew keeps a cached service token from expiring mid request.
const tokenSkew = 2 * time.Minute

type GuestInput struct {
	GuestType        string
	LastName         string
	FirstName        string
	Sex              string
	BirthDate        time.Time
	BirthPlace       string
	BirthProvince    string
	BirthCountry     string
	Citizenship      string
	DocumentType     string
	DocumentNumber   string
	DocumentIssuedAt string
	ResidenceCountry string
}

// GuestService collects guest data and submits it to the police lodging service.
type GuestService struct {
	DB         *gorm.DB
	Alloggiati AlloggiatiGateway
	Metrics    metrics.Recorder
	Now        func() time.Time
}

func NewGuestService(db *gorm.DB, alloggiati AlloggiatiGateway) *GuestService {
	return &GuestService{
		DB:         db,
		Alloggiati: alloggiati,
		Metrics:    metrics.Nop{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func schedinaFor(r models.Reservation, g models.Guest) reporting.Schedina {
	return reporting.Schedina{
		GuestType:      g.GuestType,
		Arrival:        r.CheckIn,
		Days:           r.Nights(),
		LastName:       g.LastName,
		FirstName:      g.FirstName,
		Sex:            g.Sex,
		BirthDate:      g.BirthDate,
		BirthPlace:     g.BirthPlace,
		BirthProvince:  g.BirthProvince,
		BirthCountry:   g.BirthCountry,
		Citizenship:    g.Citizenship,
		DocumentType:   g.DocumentType,
		DocumentNumber: g.DocumentNumber,
		DocumentIssued: g.DocumentIssuedAt,
	}
}

func (s *GuestService) reservation(ctx context.Context, reservationID string) (models.Reservation, error) {
	var r models.Reservation
	err := s.DB.WithContext(ctx).Preload("Room.Structure").Where("reservation_id = ?", reservationID).First(&r).Error
	return r, dbError(err, NotFound("error.reservationNotFound", "reservation not found"))
}

// SetGuests replaces the guest list of a paid reservation.
func (s *GuestService) SetGuests(ctx context.Context, p access.Principal, reservationID string, in []GuestInput) ([]models.Guest, error) {
	r, err := s.reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if d := access.OwnerOrAdmin(r.UserID)(p); d != nil {
		return nil, Forbidden(d.Code, d.Message)
	}
	if r.Status != models.StatusPaid {
		return nil, Conflict("error.reservationNotPaid", "guests can only be registered for paid reservations")
	}
	if len(in) == 0 {
		return nil, Validation("error.validation", "at least one guest is required")
	}
	if len(in) > r.NumberOfPeople {
		return nil, Validation("error.validation", fmt.Sprintf("reservation is for %d people", r.NumberOfPeople))
	}

	guests := make([]models.Guest, 0, len(in))
	for i, g := range in {
		guest := models.Guest{
			ReservationID:    r.ID,
			GuestType:        strings.TrimSpace(g.GuestType),
			LastName:         strings.TrimSpace(g.LastName),
			FirstName:        strings.TrimSpace(g.FirstName),
			Sex:              strings.ToUpper(strings.TrimSpace(g.Sex)),
			BirthDate:        availability.Day(g.BirthDate),
			BirthPlace:       strings.TrimSpace(g.BirthPlace),
			BirthProvince:    strings.ToUpper(strings.TrimSpace(g.BirthProvince)),
			BirthCountry:     strings.TrimSpace(g.BirthCountry),
			Citizenship:      strings.TrimSpace(g.Citizenship),
			DocumentType:     strings.TrimSpace(g.DocumentType),
			DocumentNumber:   strings.TrimSpace(g.DocumentNumber),
			DocumentIssuedAt: strings.TrimSpace(g.DocumentIssuedAt),
			ResidenceCountry: strings.TrimSpace(g.ResidenceCountry),
		}
		if _, err := schedinaFor(r, guest).Line(); err != nil {
			return nil, Validation("error.validation", fmt.Sprintf("guest %d: %v", i+1, err))
		}
		guests = append(guests, guest)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reservation_id = ?", r.ID).Delete(&models.Guest{}).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&guests).Error
	})
	if err != nil {
		return nil, dbError(err, nil)
	}
	return guests, nil
}

func (s *GuestService) Guests(ctx context.Context, p access.Principal, reservationID string) ([]models.Guest, error) {
	r, err := s.reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if d := access.OwnerOrAdmin(r.UserID)(p); d != nil {
		return nil, Forbidden(d.Code, d.Message)
	}
	var guests []models.Guest
	if err := s.DB.WithContext(ctx).Where("reservation_id = ?", r.ID).Order("id ASC").Find(&guests).Error; err != nil {
		return nil, Internal(err)
	}
	return guests, nil
}

// serviceToken returns a cached token for the account or asks for a new one.
func (s *GuestService) serviceToken(ctx context.Context, acct models.AlloggiatiAccount) (string, error) {
	var cached models.AlloggiatiToken
	err := s.DB.WithContext(ctx).Where("account_id = ? AND expires > ?", acct.ID, s.Now().Add(tokenSkew)).
		Order("expires DESC").First(&cached).Error
	if err == nil {
		return cached.Token, nil
	}
	if KindOf(err) != KindNotFound {
		return "", Internal(err)
	}

	began := time.Now()
	tok, err := s.Alloggiati.GenerateToken(ctx, acct.Username, acct.Password, acct.WSKey)
	s.Metrics.RecordExternalCall("alloggiati", err, time.Since(began))
	if err != nil {
		return "", External("error.alloggiati", "could not authenticate with the police lodging service", err)
	}
	if tok.Expires.IsZero() {
		tok.Expires = s.Now().Add(30 * time.Minute)
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", acct.ID).Delete(&models.AlloggiatiToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.AlloggiatiToken{AccountID: acct.ID, Issued: tok.Issued, Expires: tok.Expires, Token: tok.Token}).Error
	})
	if err != nil {
		slog.Warn("cache alloggiati token", slog.Uint64("account_id", uint64(acct.ID)), slog.Any("error", err))
	}
	return tok.Token, nil
}

type PoliceReport struct {
	ReservationID string              `json:"reservation_id"`
	Sent          int                 `json:"sent"`
	Valid         int                 `json:"valid"`
	Errors        []reporting.Outcome `json:"errors,omitempty"`
}

// SendPoliceReport submits one record per registered guest of the reservation.
func (s *GuestService) SendPoliceReport(ctx context.Context, reservationID string) (*PoliceReport, error) {
	if s.Alloggiati == nil {
		return nil, External("error.alloggiati", "police lodging service is not configured", nil)
	}
	r, err := s.reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	var guests []models.Guest
	if err := s.DB.WithContext(ctx).Where("reservation_id = ?", r.ID).Order("id ASC").Find(&guests).Error; err != nil {
		return nil, Internal(err)
	}
	if len(guests) == 0 {
		return nil, Validation("error.noGuests", "no guests registered for the reservation")
	}
	var acct models.AlloggiatiAccount
	if err := s.DB.WithContext(ctx).Where("structure_id = ?", r.Room.StructureID).First(&acct).Error; err != nil {
		return nil, dbError(err, NotFound("error.alloggiatiAccount", "structure has no police lodging account"))
	}

	records := make([]reporting.Schedina, 0, len(guests))
	for _, g := range guests {
		records = append(records, schedinaFor(r, g))
	}
	lines, err := reporting.Lines(records)
	if err != nil {
		return nil, Validation("error.validation", err.Error())
	}

	token, err := s.serviceToken(ctx, acct)
	if err != nil {
		return nil, err
	}
	began := time.Now()
	res, err := s.Alloggiati.Send(ctx, acct.Username, token, lines)
	s.Metrics.RecordExternalCall("alloggiati", err, time.Since(began))

	out := &PoliceReport{ReservationID: r.ReservationID, Sent: len(lines)}
	if res != nil {
		out.Valid = res.Valid
		for _, d := range res.Details {
			if !d.OK {
				out.Errors = append(out.Errors, d)
			}
		}
	}
	if err != nil {
		slog.Error("police report rejected", slog.String("reservation_id", r.ReservationID), slog.Any("error", err))
		appErr := External("error.alloggiati", "the police lodging service rejected the report", err)
		if len(out.Errors) > 0 {
			appErr.WithField("records", out.Errors)
		}
		return out, appErr
	}
	slog.Info("police report sent", slog.String("reservation_id", r.ReservationID), slog.Int("records", len(lines)))
	return out, nil
}

// DmsReportService writes the DMS Puglia daily movements file of a structure.
type DmsReportService struct {
	DB    *gorm.DB
	Files reporting.FileStore
}

func NewDmsReportService(db *gorm.DB, files reporting.FileStore) *DmsReportService {
	return &DmsReportService{DB: db, Files: files}
}

type DmsResult struct {
	Path       string `json:"path"`
	Date       string `json:"date"`
	Arrivals   int    `json:"arrivals"`
	Departures int    `json:"departures"`
}

func movementFor(kind string, r models.Reservation) reporting.Movement {
	m := reporting.Movement{Kind: kind, Reservation: r.ReservationID, Room: r.Room.Name, Nights: r.Nights()}
	for _, g := range r.Guests {
		m.Guests = append(m.Guests, reporting.DmsGuest{
			GuestType:   g.GuestType,
			LastName:    g.LastName,
			FirstName:   g.FirstName,
			Sex:         g.Sex,
			BirthDate:   g.BirthDate.Format(models.DateLayout),
			Citizenship: g.Citizenship,
			Residence:   g.ResidenceCountry,
		})
	}
	return m
}

// Generate merges the day's arrivals and departures into the structure's
// file for that day, creating it when missing.
func (s *DmsReportService) Generate(ctx context.Context, structureID uint, day time.Time) (*DmsResult, error) {
	day = availability.Day(day)
	var st models.Structure
	if err := s.DB.WithContext(ctx).First(&st, structureID).Error; err != nil {
		return nil, dbError(err, NotFound("error.structureNotFound", "structure not found"))
	}
	if st.CIS == "" {
		return nil, Validation("error.missingCIS", "structure has no CIS code")
	}

	var rows []models.Reservation
	err := s.DB.WithContext(ctx).Preload("Room").Preload("Guests").
		Joins("JOIN rooms ON rooms.id = reservations.room_id").
		Where("rooms.structure_id = ? AND reservations.status = ?", st.ID, models.StatusPaid).
		Where("reservations.check_in = ? OR reservations.check_out = ?", day, day).
		Find(&rows).Error
	if err != nil {
		return nil, Internal(err)
	}

	name := reporting.DmsFileName(st.CIS, day)
	report := reporting.NewDailyReport(st.CIS, day)
	exists, err := s.Files.Exists(name)
	if err != nil {
		return nil, Internal(err)
	}
	if exists {
		data, err := s.Files.Read(name)
		if err != nil {
			return nil, Internal(err)
		}
		if report, err = reporting.ParseDailyReport(data); err != nil {
			return nil, Internal(err)
		}
	}

	var movements []reporting.Movement
	for _, r := range rows {
		if r.CheckIn.Equal(day) {
			movements = append(movements, movementFor(reporting.MovementArrival, r))
		}
		if r.CheckOut.Equal(day) {
			movements = append(movements, movementFor(reporting.MovementDeparture, r))
		}
	}
	report.Merge(movements...)

	data, err := report.Marshal()
	if err != nil {
		return nil, Internal(err)
	}
	if err := s.Files.Write(name, data); err != nil {
		return nil, Internal(err)
	}

	rec := models.DmsPugliaReport{StructureID: st.ID, Date: day, Path: name}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "structure_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return nil, dbError(err, nil)
	}

	arrivals, departures := report.Counts()
	return &DmsResult{Path: name, Date: day.Format(models.DateLayout), Arrivals: arrivals, Departures: departures}, nil
}

// CategoryService imports and serves the check-in code tables.
type CategoryService struct {
	DB *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{DB: db}
}

// Import loads a CSV into category. An already imported category is left
// untouched and reports skipped.
func (s *CategoryService) Import(ctx context.Context, category string, r io.Reader) (imported int, skipped bool, err error) {
	if !reporting.ValidCategory(category) {
		return 0, false, Validation("error.validation", fmt.Sprintf("unknown category %q (valid: %s)", category, strings.Join(reporting.Categories, ", ")))
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.CheckinCategoryChoice{}).Where("category = ?", category).Count(&count).Error; err != nil {
		return 0, false, Internal(err)
	}
	if count > 0 {
		return 0, true, nil
	}
	choices, err := reporting.ParseChoices(r)
	if err != nil {
		return 0, false, Validation("error.validation", err.Error())
	}
	rows := make([]models.CheckinCategoryChoice, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, models.CheckinCategoryChoice{Category: category, Code: c.Code, Description: c.Description})
	}
	if len(rows) > 0 {
		if err := s.DB.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
			return 0, false, Internal(err)
		}
	}
	return len(rows), false, nil
}

func (s *CategoryService) Choices(ctx context.Context, category, search string) ([]models.CheckinCategoryChoice, error) {
	q := s.DB.WithContext(ctx).Where("category = ?", category)
	if term := strings.TrimSpace(search); term != "" {
		q = q.Where("LOWER(descrizione) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var rows []models.CheckinCategoryChoice
	if err := q.Order("descrizione ASC").Limit(200).Find(&rows).Error; err != nil {
		return nil, Internal(err)
	}
	return rows, nil
}
