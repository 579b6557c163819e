package controllers

import (
	"net/http"
	"strconv"

	"rental-backend/models"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

type roomPayload struct {
	StructureID  uint    `json:"structure_id" binding:"required"`
	RoomStatus   string  `json:"room_status" binding:"omitempty,oneof=AVAILABLE UNAVAILABLE"`
	Name         string  `json:"name" binding:"required,max=100"`
	Services     string  `json:"services"`
	CostPerNight float64 `json:"cost_per_night" binding:"gte=0"`
	MaxPeople    int     `json:"max_people" binding:"required,gte=1"`
}

func (p roomPayload) model() models.Room {
	return models.Room{
		StructureID:  p.StructureID,
		RoomStatus:   p.RoomStatus,
		Name:         p.Name,
		Services:     p.Services,
		CostPerNight: p.CostPerNight,
		MaxPeople:    p.MaxPeople,
	}
}

// calendarsPayload maps a booking channel to its calendar id.
type calendarsPayload struct {
	Calendars map[string]string `json:"calendars" binding:"required"`
}

type RoomController struct {
	Rooms        *services.RoomService
	Availability *services.AvailabilityService
}

func NewRoomController(rooms *services.RoomService, avail *services.AvailabilityService) *RoomController {
	return &RoomController{Rooms: rooms, Availability: avail}
}

// List (GET /rooms?structure=&min_cost=&max_cost=&min_people=)
func (ctrl *RoomController) List(c *gin.Context) {
	f := services.RoomFilter{ListParams: listParams(c)}
	var err error
	if f.StructureID, err = optionalUint(c, "structure"); err != nil {
		respondError(c, err)
		return
	}
	if f.MinCost, err = optionalFloat(c, "min_cost"); err != nil {
		respondError(c, err)
		return
	}
	if f.MaxCost, err = optionalFloat(c, "max_cost"); err != nil {
		respondError(c, err)
		return
	}
	if raw := c.Query("min_people"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			respondError(c, services.Validation("error.invalidQuery", "invalid query parameter").WithField("min_people", "must be an integer"))
			return
		}
		f.MinPeople = &n
	}
	rows, total, err := ctrl.Rooms.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, rows, total, f.ListParams)
}

func (ctrl *RoomController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	room, err := ctrl.Rooms.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, room)
}

func (ctrl *RoomController) Create(c *gin.Context) {
	var p roomPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	room := p.model()
	if err := ctrl.Rooms.Create(c.Request.Context(), &room); err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, room)
}

func (ctrl *RoomController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p roomPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	room, err := ctrl.Rooms.Update(c.Request.Context(), id, p.model())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, room)
}

func (ctrl *RoomController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := ctrl.Rooms.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *RoomController) UploadImage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	data, ok := readUpload(c, "image")
	if !ok {
		return
	}
	img, err := ctrl.Rooms.AddImage(c.Request.Context(), id, data)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, img)
}

// SetCalendars (PUT /rooms/:id/calendars)
func (ctrl *RoomController) SetCalendars(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p calendarsPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	room, err := ctrl.Rooms.SetCalendars(c.Request.Context(), id, p.Calendars)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, room)
}

// ---------------------------
// Availability
// ---------------------------

// RoomAvailability (GET /rooms/:id/availability?check_in=&check_out=)
func (ctrl *RoomController) RoomAvailability(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	checkIn, checkOut, ok := stayDates(c)
	if !ok {
		return
	}
	res, err := ctrl.Availability.RoomAvailability(c.Request.Context(), id, checkIn, checkOut)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, res)
}

// Available (GET /rooms/available?check_in=&check_out=&number_of_people=)
func (ctrl *RoomController) Available(c *gin.Context) {
	checkIn, checkOut, ok := stayDates(c)
	if !ok {
		return
	}
	people := 1
	if raw := c.Query("number_of_people"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, services.Validation("error.invalidQuery", "invalid query parameter").WithField("number_of_people", "must be at least 1"))
			return
		}
		people = n
	}
	rooms, err := ctrl.Availability.SearchAvailableRooms(c.Request.Context(), checkIn, checkOut, people)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, rooms)
}
