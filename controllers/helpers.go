package controllers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"rental-backend/models"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ---------------------------
// Error responses
// ---------------------------

func respondError(c *gin.Context, err error) {
	var appErr *services.AppError
	if !errors.As(err, &appErr) {
		appErr = services.Internal(err)
	}
	status := appErr.Kind.HTTPStatus()
	if status >= 500 {
		slog.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("code", appErr.Code),
			slog.Any("error", err),
		)
		_ = c.Error(err)
	}
	utils.JSONError(c, status, appErr.Code, appErr.Message, appErr.Fields)
}

// respondBindError turns binding failures into field level messages.
func respondBindError(c *gin.Context, err error) {
	details := map[string]any{}
	var verrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			details[fe.Field()] = fieldMessage(fe)
		}
	case errors.As(err, &typeErr):
		details[typeErr.Field] = "must be a " + typeErr.Type.String()
	case errors.As(err, &syntaxErr):
		details["body"] = "malformed JSON"
	default:
		details["body"] = err.Error()
	}
	utils.JSONError(c, http.StatusBadRequest, "error.invalidPayload", "Invalid request payload", details)
}

func init() {
	// Report validation errors under the JSON field names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				name = f.Tag.Get("form")
			}
			return name
		})
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date formatted as " + fe.Param()
	}
	return "invalid value (" + fe.Tag() + ")"
}

// ---------------------------
// Params
// ---------------------------

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.JSONError(c, http.StatusBadRequest, "error.invalidId", "Invalid id", map[string]any{name: "must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}

// parseDate reads a YYYY-MM-DD value as UTC midnight.
func parseDate(field, raw string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, services.Validation("error.invalidDate", "invalid date").WithField(field, "must be YYYY-MM-DD")
	}
	return d, nil
}

func optionalDate(c *gin.Context, field string) (*time.Time, error) {
	raw := c.Query(field)
	if raw == "" {
		return nil, nil
	}
	d, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalUint(c *gin.Context, field string) (*uint, error) {
	raw := c.Query(field)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, services.Validation("error.invalidQuery", "invalid query parameter").WithField(field, "must be a positive integer")
	}
	u := uint(v)
	return &u, nil
}

func optionalFloat(c *gin.Context, field string) (*float64, error) {
	raw := c.Query(field)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, services.Validation("error.invalidQuery", "invalid query parameter").WithField(field, "must be a number")
	}
	return &v, nil
}

// stayDates reads the required check_in and check_out query parameters.
func stayDates(c *gin.Context) (checkIn, checkOut time.Time, ok bool) {
	checkIn, err := parseDate("check_in", c.Query("check_in"))
	if err != nil {
		respondError(c, err)
		return checkIn, checkOut, false
	}
	checkOut, err = parseDate("check_out", c.Query("check_out"))
	if err != nil {
		respondError(c, err)
		return checkIn, checkOut, false
	}
	return checkIn, checkOut, true
}

func listParams(c *gin.Context) services.ListParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return services.ListParams{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     page,
		PageSize: size,
	}
}

// pageMeta mirrors the bounds applied by the services.
func pageMeta(p services.ListParams) (page, size int) {
	page, size = p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

func respondPage(c *gin.Context, data any, total int64, p services.ListParams) {
	page, size := pageMeta(p)
	utils.JSONPage(c, http.StatusOK, data, total, page, size)
}
