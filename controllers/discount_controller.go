package controllers

import (
	"net/http"

	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

type discountPayload struct {
	Code        string  `json:"code" binding:"required,max=50"`
	Description string  `json:"description"`
	Percent     float64 `json:"discount" binding:"required,gt=0,lte=100"`
	StartDate   string  `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate     string  `json:"end_date" binding:"required,datetime=2006-01-02"`
	MinNights   int     `json:"numbers_of_nights" binding:"gte=0"`
	Rooms       []uint  `json:"rooms"`
}

func (p discountPayload) input() (services.DiscountInput, error) {
	start, err := parseDate("start_date", p.StartDate)
	if err != nil {
		return services.DiscountInput{}, err
	}
	end, err := parseDate("end_date", p.EndDate)
	if err != nil {
		return services.DiscountInput{}, err
	}
	return services.DiscountInput{
		Code:        p.Code,
		Description: p.Description,
		Percent:     p.Percent,
		StartDate:   start,
		EndDate:     end,
		MinNights:   p.MinNights,
		RoomIDs:     p.Rooms,
	}, nil
}

type DiscountController struct {
	Discounts *services.DiscountService
}

func NewDiscountController(discounts *services.DiscountService) *DiscountController {
	return &DiscountController{Discounts: discounts}
}

func (ctrl *DiscountController) List(c *gin.Context) {
	p := listParams(c)
	rows, total, err := ctrl.Discounts.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, rows, total, p)
}

func (ctrl *DiscountController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	d, err := ctrl.Discounts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, d)
}

func (ctrl *DiscountController) Create(c *gin.Context) {
	var p discountPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	in, err := p.input()
	if err != nil {
		respondError(c, err)
		return
	}
	d, err := ctrl.Discounts.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, d)
}

func (ctrl *DiscountController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p discountPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	in, err := p.input()
	if err != nil {
		respondError(c, err)
		return
	}
	d, err := ctrl.Discounts.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, d)
}

func (ctrl *DiscountController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := ctrl.Discounts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
