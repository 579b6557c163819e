package controllers

import (
	"net/http"
	"time"

	"rental-backend/middleware"
	"rental-backend/models"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

// ---------------------------
// Payload / DTOs
// ---------------------------

type createReservationPayload struct {
	RoomID         uint   `json:"room_id" binding:"required"`
	CheckIn        string `json:"check_in" binding:"required,datetime=2006-01-02"`
	CheckOut       string `json:"check_out" binding:"required,datetime=2006-01-02"`
	NumberOfPeople int    `json:"number_of_people" binding:"required,gte=1"`
	FirstName      string `json:"first_name" binding:"required,max=150"`
	LastName       string `json:"last_name" binding:"required,max=150"`
	Phone          string `json:"phone" binding:"required,max=20"`
	Email          string `json:"email" binding:"required,email"`
	Coupon         string `json:"coupon" binding:"max=50"`
}

type applyDiscountPayload struct {
	Code string `json:"code" binding:"required,max=50"`
}

type guestPayload struct {
	GuestType        string `json:"guest_type" binding:"required"`
	LastName         string `json:"last_name" binding:"required,max=50"`
	FirstName        string `json:"first_name" binding:"required,max=30"`
	Sex              string `json:"sex" binding:"required"`
	BirthDate        string `json:"birth_date" binding:"required,datetime=2006-01-02"`
	BirthPlace       string `json:"birth_place" binding:"max=9"`
	BirthProvince    string `json:"birth_province" binding:"max=2"`
	BirthCountry     string `json:"birth_country" binding:"required,max=9"`
	Citizenship      string `json:"citizenship" binding:"required,max=9"`
	DocumentType     string `json:"document_type" binding:"max=5"`
	DocumentNumber   string `json:"document_number" binding:"max=20"`
	DocumentIssuedAt string `json:"document_issued_at" binding:"max=9"`
	ResidenceCountry string `json:"residence_country" binding:"max=9"`
}

type guestsPayload struct {
	Guests []guestPayload `json:"guests" binding:"required,min=1,dive"`
}

// ---------------------------
// Controller
// ---------------------------

type ReservationController struct {
	Reservations *services.ReservationService
	Guests       *services.GuestService
}

func NewReservationController(res *services.ReservationService, guests *services.GuestService) *ReservationController {
	return &ReservationController{Reservations: res, Guests: guests}
}

// List (GET /reservations) filters by user, room, status, check_in,
// check_out and created_at day.
func (ctrl *ReservationController) List(c *gin.Context) {
	p := listParams(c)
	f := services.ReservationFilter{
		Status:   c.Query("status"),
		Search:   p.Search,
		Ordering: p.Ordering,
		Page:     p.Page,
		PageSize: p.PageSize,
	}
	var err error
	if f.UserID, err = optionalUint(c, "user"); err != nil {
		respondError(c, err)
		return
	}
	if f.RoomID, err = optionalUint(c, "room"); err != nil {
		respondError(c, err)
		return
	}
	if f.CheckIn, err = optionalDate(c, "check_in"); err != nil {
		respondError(c, err)
		return
	}
	if f.CheckOut, err = optionalDate(c, "check_out"); err != nil {
		respondError(c, err)
		return
	}
	created, err := optionalDate(c, "created_at")
	if err != nil {
		respondError(c, err)
		return
	}
	if created != nil {
		next := created.Add(24 * time.Hour)
		f.CreatedFrom, f.CreatedTo = created, &next
	}

	rows, total, err := ctrl.Reservations.List(c.Request.Context(), middleware.PrincipalFrom(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, rows, total, p)
}

func (ctrl *ReservationController) Create(c *gin.Context) {
	var p createReservationPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	checkIn, err := parseDate("check_in", p.CheckIn)
	if err != nil {
		respondError(c, err)
		return
	}
	checkOut, err := parseDate("check_out", p.CheckOut)
	if err != nil {
		respondError(c, err)
		return
	}
	in := services.CreateReservationInput{
		RoomID:         p.RoomID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		NumberOfPeople: p.NumberOfPeople,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Phone:          p.Phone,
		Email:          p.Email,
		Coupon:         p.Coupon,
	}
	if pr := middleware.PrincipalFrom(c); pr.Authenticated {
		uid := pr.UserID
		in.UserID = &uid
	}
	res, err := ctrl.Reservations.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, res)
}

func (ctrl *ReservationController) Get(c *gin.Context) {
	res, err := ctrl.Reservations.Get(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, res)
}

// ApplyDiscount (POST /reservations/:reservation_id/discount)
func (ctrl *ReservationController) ApplyDiscount(c *gin.Context) {
	var p applyDiscountPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	res, err := ctrl.Reservations.ApplyDiscount(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("reservation_id"), p.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, res)
}

// Checkout (POST /reservations/:reservation_id/checkout-session)
func (ctrl *ReservationController) Checkout(c *gin.Context) {
	out, err := ctrl.Reservations.CreateCheckoutSession(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, out)
}

// Cancel (POST /reservations/:reservation_id/cancel)
func (ctrl *ReservationController) Cancel(c *gin.Context) {
	out, err := ctrl.Reservations.Cancel(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, out)
}

// ---------------------------
// Guests and police report
// ---------------------------

func (ctrl *ReservationController) ListGuests(c *gin.Context) {
	guests, err := ctrl.Guests.Guests(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, guests)
}

// SetGuests (POST /reservations/:reservation_id/guests) replaces the guest list.
func (ctrl *ReservationController) SetGuests(c *gin.Context) {
	var p guestsPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	in := make([]services.GuestInput, 0, len(p.Guests))
	for _, g := range p.Guests {
		born, err := time.Parse(models.DateLayout, g.BirthDate)
		if err != nil {
			respondError(c, services.Validation("error.invalidDate", "invalid date").WithField("birth_date", "must be YYYY-MM-DD"))
			return
		}
		in = append(in, services.GuestInput{
			GuestType:        g.GuestType,
			LastName:         g.LastName,
			FirstName:        g.FirstName,
			Sex:              g.Sex,
			BirthDate:        born,
			BirthPlace:       g.BirthPlace,
			BirthProvince:    g.BirthProvince,
			BirthCountry:     g.BirthCountry,
			Citizenship:      g.Citizenship,
			DocumentType:     g.DocumentType,
			DocumentNumber:   g.DocumentNumber,
			DocumentIssuedAt: g.DocumentIssuedAt,
			ResidenceCountry: g.ResidenceCountry,
		})
	}
	guests, err := ctrl.Guests.SetGuests(c.Request.Context(), middleware.PrincipalFrom(c), c.Param("reservation_id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, guests)
}

// PoliceReport (POST /reservations/:reservation_id/police-report), admin only.
func (ctrl *ReservationController) PoliceReport(c *gin.Context) {
	out, err := ctrl.Guests.SendPoliceReport(c.Request.Context(), c.Param("reservation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, out)
}
