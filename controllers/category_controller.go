package controllers

import (
	"net/http"

	"rental-backend/reporting"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

type CategoryController struct {
	Categories *services.CategoryService
}

func NewCategoryController(categories *services.CategoryService) *CategoryController {
	return &CategoryController{Categories: categories}
}

// Choices (GET /checkin-categories/:category?search=) lists the codes used
// when filling in guest data.
func (ctrl *CategoryController) Choices(c *gin.Context) {
	category := c.Param("category")
	if !reporting.ValidCategory(category) {
		utils.JSONError(c, http.StatusNotFound, "error.categoryNotFound", "Unknown category", map[string]any{"valid": reporting.Categories})
		return
	}
	rows, err := ctrl.Categories.Choices(c.Request.Context(), category, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, rows)
}
