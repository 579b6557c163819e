package controllers

import (
	"io"
	"net/http"

	"rental-backend/models"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

type structurePayload struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	Address     string `json:"address" binding:"max=255"`
	CIS         string `json:"cis" binding:"required,max=50"`
}

func (p structurePayload) model() models.Structure {
	return models.Structure{Name: p.Name, Description: p.Description, Address: p.Address, CIS: p.CIS}
}

type StructureController struct {
	Structures *services.StructureService
	Dms        *services.DmsReportService
}

func NewStructureController(structures *services.StructureService, dms *services.DmsReportService) *StructureController {
	return &StructureController{Structures: structures, Dms: dms}
}

func (ctrl *StructureController) List(c *gin.Context) {
	p := listParams(c)
	rows, total, err := ctrl.Structures.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, rows, total, p)
}

func (ctrl *StructureController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	st, err := ctrl.Structures.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, st)
}

func (ctrl *StructureController) Create(c *gin.Context) {
	var p structurePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	st := p.model()
	if err := ctrl.Structures.Create(c.Request.Context(), &st); err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, st)
}

func (ctrl *StructureController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p structurePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	st, err := ctrl.Structures.Update(c.Request.Context(), id, p.model())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, st)
}

func (ctrl *StructureController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := ctrl.Structures.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadImage (POST /structures/:id/images, multipart field "image")
func (ctrl *StructureController) UploadImage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	data, ok := readUpload(c, "image")
	if !ok {
		return
	}
	img, err := ctrl.Structures.AddImage(c.Request.Context(), id, data)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, img)
}

// DmsReport (POST /structures/:id/dms-report?date=YYYY-MM-DD) builds the
// regional tourism movement file for one day.
func (ctrl *StructureController) DmsReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	day, err := parseDate("date", c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := ctrl.Dms.Generate(c.Request.Context(), id, day)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, res)
}

func readUpload(c *gin.Context, field string) ([]byte, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "error.invalidPayload", "Invalid request payload", map[string]any{field: "file is required"})
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, services.Internal(err))
		return nil, false
	}
	defer f.Close()
	// One byte past the limit so oversized uploads are still rejected by size.
	data, err := io.ReadAll(io.LimitReader(f, 8<<20+1))
	if err != nil {
		respondError(c, services.Internal(err))
		return nil, false
	}
	return data, true
}
