package services

import (
	"context"
	"strings"
	"time"

	"rental-backend/availability"
	"rental-backend/models"
	"rental-backend/reporting"

	"gorm.io/gorm"
)

type ListParams struct {
	Search   string
	Ordering string
	Page     int
	PageSize int
}

// StructureService manages properties and their pictures.
type StructureService struct {
	DB    *gorm.DB
	Files reporting.FileStore
}

func NewStructureService(db *gorm.DB, files reporting.FileStore) *StructureService {
	return &StructureService{DB: db, Files: files}
}

var structureOrdering = map[string]string{"name": "name", "address": "address", "created_at": "created_at"}

func (s *StructureService) List(ctx context.Context, p ListParams) ([]models.Structure, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Structure{})
	if term := strings.TrimSpace(p.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(address) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	offset, limit := paginate(p.Page, p.PageSize)
	var rows []models.Structure
	err := q.Preload("Images").Order(orderClause(p.Ordering, structureOrdering, "name ASC")).
		Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, Internal(err)
	}
	return rows, total, nil
}

func (s *StructureService) Get(ctx context.Context, id uint) (*models.Structure, error) {
	var st models.Structure
	err := s.DB.WithContext(ctx).Preload("Images").Preload("Rooms").First(&st, id).Error
	if err != nil {
		return nil, dbError(err, NotFound("error.structureNotFound", "structure not found"))
	}
	return &st, nil
}

func validateStructure(st *models.Structure) error {
	st.Name = strings.TrimSpace(st.Name)
	st.CIS = strings.TrimSpace(st.CIS)
	if st.Name == "" {
		return Validation("error.validation", "name is required").WithField("name", "required")
	}
	if st.CIS == "" {
		return Validation("error.validation", "cis is required").WithField("cis", "required")
	}
	return nil
}

func (s *StructureService) Create(ctx context.Context, st *models.Structure) error {
	if err := validateStructure(st); err != nil {
		return err
	}
	return dbError(s.DB.WithContext(ctx).Omit("Rooms", "Images").Create(st).Error, nil)
}

func (s *StructureService) Update(ctx context.Context, id uint, in models.Structure) (*models.Structure, error) {
	if err := validateStructure(&in); err != nil {
		return nil, err
	}
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Model(st).Updates(map[string]any{
		"name":        in.Name,
		"description": in.Description,
		"address":     in.Address,
		"cis":         in.CIS,
	}).Error
	if err != nil {
		return nil, dbError(err, nil)
	}
	return s.Get(ctx, id)
}

func (s *StructureService) Delete(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Delete(&models.Structure{}, id)
	if res.Error != nil {
		return dbError(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return NotFound("error.structureNotFound", "structure not found")
	}
	return nil
}

func (s *StructureService) AddImage(ctx context.Context, id uint, data []byte) (*models.StructureImage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	p, err := SaveImage(s.Files, "structures", data)
	if err != nil {
		return nil, err
	}
	img := models.StructureImage{StructureID: id, Path: p}
	if err := s.DB.WithContext(ctx).Create(&img).Error; err != nil {
		return nil, dbError(err, nil)
	}
	return &img, nil
}

// RoomService manages rooms, their pictures and their calendar bindings.
type RoomService struct {
	DB    *gorm.DB
	Files reporting.FileStore
}

func NewRoomService(db *gorm.DB, files reporting.FileStore) *RoomService {
	return &RoomService{DB: db, Files: files}
}

type RoomFilter struct {
	ListParams
	StructureID *uint
	MinCost     *float64
	MaxCost     *float64
	MinPeople   *int
}

var roomOrdering = map[string]string{"name": "name", "cost_per_night": "cost_per_night", "max_people": "max_people"}

func (s *RoomService) List(ctx context.Context, f RoomFilter) ([]models.Room, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Room{})
	if f.StructureID != nil {
		q = q.Where("structure_id = ?", *f.StructureID)
	}
	if f.MinCost != nil {
		q = q.Where("cost_per_night >= ?", *f.MinCost)
	}
	if f.MaxCost != nil {
		q = q.Where("cost_per_night <= ?", *f.MaxCost)
	}
	if f.MinPeople != nil {
		q = q.Where("max_people >= ?", *f.MinPeople)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(services) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	offset, limit := paginate(f.Page, f.PageSize)
	var rows []models.Room
	err := q.Preload("Images").Preload("Calendars").
		Order(orderClause(f.Ordering, roomOrdering, "id ASC")).
		Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, Internal(err)
	}
	return rows, total, nil
}

func (s *RoomService) Get(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).Preload("Images").Preload("Calendars").First(&room, id).Error
	if err != nil {
		return nil, dbError(err, NotFound("error.roomNotFound", "room not found"))
	}
	return &room, nil
}

func (s *RoomService) validate(ctx context.Context, room *models.Room) error {
	room.Name = strings.TrimSpace(room.Name)
	if room.Name == "" {
		return Validation("error.validation", "name is required").WithField("name", "required")
	}
	if room.MaxPeople < 1 {
		return Validation("error.validation", "max_people must be at least 1").WithField("max_people", "must be at least 1")
	}
	if room.CostPerNight < 0 {
		return Validation("error.validation", "cost_per_night cannot be negative").WithField("cost_per_night", "cannot be negative")
	}
	switch room.RoomStatus {
	case "":
		room.RoomStatus = models.RoomAvailable
	case models.RoomAvailable, models.RoomUnavailable:
	default:
		return Validation("error.validation", "invalid room_status").WithField("room_status", "AVAILABLE or UNAVAILABLE")
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Structure{}).Where("id = ?", room.StructureID).Count(&count).Error; err != nil {
		return Internal(err)
	}
	if count == 0 {
		return Validation("error.validation", "structure does not exist").WithField("structure_id", "unknown structure")
	}
	return nil
}

func (s *RoomService) Create(ctx context.Context, room *models.Room) error {
	if err := s.validate(ctx, room); err != nil {
		return err
	}
	return dbError(s.DB.WithContext(ctx).Omit("Structure", "Images").Create(room).Error, nil)
}

func (s *RoomService) Update(ctx context.Context, id uint, in models.Room) (*models.Room, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Model(&models.Room{ID: id}).Updates(map[string]any{
		"structure_id":   in.StructureID,
		"room_status":    in.RoomStatus,
		"name":           in.Name,
		"services":       in.Services,
		"cost_per_night": in.CostPerNight,
		"max_people":     in.MaxPeople,
	}).Error
	if err != nil {
		return nil, dbError(err, nil)
	}
	return s.Get(ctx, id)
}

func (s *RoomService) Delete(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Delete(&models.Room{}, id)
	if res.Error != nil {
		return dbError(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return NotFound("error.roomNotFound", "room not found")
	}
	return nil
}

func (s *RoomService) AddImage(ctx context.Context, id uint, data []byte) (*models.RoomImage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	p, err := SaveImage(s.Files, "rooms", data)
	if err != nil {
		return nil, err
	}
	img := models.RoomImage{RoomID: id, Path: p}
	if err := s.DB.WithContext(ctx).Create(&img).Error; err != nil {
		return nil, dbError(err, nil)
	}
	return &img, nil
}

// SetCalendars replaces the room's channel to calendar bindings.
func (s *RoomService) SetCalendars(ctx context.Context, id uint, calendars map[string]string) (*models.Room, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&models.RoomCalendar{}).Error; err != nil {
			return err
		}
		for channel, calID := range calendars {
			channel = strings.ToLower(strings.TrimSpace(channel))
			calID = strings.TrimSpace(calID)
			if channel == "" || calID == "" {
				return Validation("error.validation", "channel and calendar id are required")
			}
			if err := tx.Create(&models.RoomCalendar{RoomID: id, Channel: channel, CalendarID: calID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, dbError(err, nil)
	}
	return s.Get(ctx, id)
}

// DiscountService manages discount codes.
type DiscountService struct {
	DB *gorm.DB
}

func NewDiscountService(db *gorm.DB) *DiscountService {
	return &DiscountService{DB: db}
}

type DiscountInput struct {
	Code        string
	Description string
	Percent     float64
	StartDate   time.Time
	EndDate     time.Time
	MinNights   int
	RoomIDs     []uint
}

func (s *DiscountService) validate(ctx context.Context, in *DiscountInput) ([]models.Room, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.StartDate, in.EndDate = availability.Day(in.StartDate), availability.Day(in.EndDate)
	if in.Code == "" {
		return nil, Validation("error.validation", "code is required").WithField("code", "required")
	}
	if in.Percent <= 0 || in.Percent > 100 {
		return nil, Validation("error.validation", "discount must be between 0 and 100").WithField("discount", "between 0 and 100")
	}
	if !in.StartDate.Before(in.EndDate) {
		return nil, Validation("error.validation", "start date must be before end date").WithField("start_date", "must be before end_date")
	}
	if in.MinNights < 1 {
		in.MinNights = 1
	}
	var rooms []models.Room
	if len(in.RoomIDs) > 0 {
		if err := s.DB.WithContext(ctx).Where("id IN ?", in.RoomIDs).Find(&rooms).Error; err != nil {
			return nil, Internal(err)
		}
		if len(rooms) != len(in.RoomIDs) {
			return nil, Validation("error.validation", "unknown room in discount scope").WithField("rooms", "unknown room")
		}
	}
	return rooms, nil
}

func (s *DiscountService) List(ctx context.Context, p ListParams) ([]models.Discount, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Discount{})
	if term := strings.TrimSpace(p.Search); term != "" {
		q = q.Where("LOWER(code) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	offset, limit := paginate(p.Page, p.PageSize)
	ordering := map[string]string{"code": "code", "discount": "discount", "start_date": "start_date", "end_date": "end_date"}
	var rows []models.Discount
	err := q.Preload("Rooms").Order(orderClause(p.Ordering, ordering, "start_date DESC")).
		Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, Internal(err)
	}
	return rows, total, nil
}

func (s *DiscountService) Get(ctx context.Context, id uint) (*models.Discount, error) {
	var d models.Discount
	if err := s.DB.WithContext(ctx).Preload("Rooms").First(&d, id).Error; err != nil {
		return nil, dbError(err, NotFound("error.discountNotFound", "discount not found"))
	}
	return &d, nil
}

func (s *DiscountService) Create(ctx context.Context, in DiscountInput) (*models.Discount, error) {
	rooms, err := s.validate(ctx, &in)
	if err != nil {
		return nil, err
	}
	d := models.Discount{
		Code:        in.Code,
		Description: in.Description,
		Percent:     in.Percent,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		MinNights:   in.MinNights,
		Rooms:       rooms,
	}
	if err := s.DB.WithContext(ctx).Omit("Rooms.*").Create(&d).Error; err != nil {
		return nil, dbError(err, nil)
	}
	return &d, nil
}

func (s *DiscountService) Update(ctx context.Context, id uint, in DiscountInput) (*models.Discount, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rooms, err := s.validate(ctx, &in)
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(d).Updates(map[string]any{
			"code":              in.Code,
			"description":       in.Description,
			"discount":          in.Percent,
			"start_date":        in.StartDate,
			"end_date":          in.EndDate,
			"numbers_of_nights": in.MinNights,
		}).Error; err != nil {
			return err
		}
		if len(rooms) == 0 {
			return tx.Model(d).Association("Rooms").Clear()
		}
		return tx.Model(d).Association("Rooms").Replace(rooms)
	})
	if err != nil {
		return nil, dbError(err, nil)
	}
	return s.Get(ctx, id)
}

func (s *DiscountService) Delete(ctx context.Context, id uint) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return dbError(s.DB.WithContext(ctx).Select("Rooms").Delete(d).Error, nil)
}
