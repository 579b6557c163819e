package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rental-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) (code string, details map[string]any) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Details
}

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.Validation("error.validation", "bad").WithField("name", "required"), http.StatusBadRequest, "error.validation"},
		{services.Forbidden("error.forbidden", "no"), http.StatusForbidden, "error.forbidden"},
		{services.NotFound("error.roomNotFound", "missing"), http.StatusNotFound, "error.roomNotFound"},
		{services.Conflict("error.roomNotAvailable", "busy"), http.StatusConflict, "error.roomNotAvailable"},
		{services.External("error.calendar", "down", errors.New("timeout")), http.StatusInternalServerError, "error.calendar"},
		{errors.New("boom"), http.StatusInternalServerError, "error.internal"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		respondError(c, tc.err)

		assert.Equal(t, tc.status, w.Code, tc.code)
		code, _ := errorBody(t, w)
		assert.Equal(t, tc.code, code)
	}
}

type sample struct {
	RoomID uint   `json:"room_id" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Hidden string `json:"-" form:"hidden_field" binding:"max=2"`
}

func bind(t *testing.T, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var s sample
	err := c.ShouldBindJSON(&s)
	if err != nil {
		respondBindError(c, err)
	}
	return w, err
}

func TestRespondBindError(t *testing.T) {
	w, err := bind(t, `{"email":"nope"}`)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, details := errorBody(t, w)
	assert.Equal(t, "error.invalidPayload", code)
	assert.Equal(t, "required", details["room_id"])
	assert.Equal(t, "must be a valid email address", details["email"])

	w, err = bind(t, `{"room_id":"one","email":"a@b.it"}`)
	require.Error(t, err)
	_, details = errorBody(t, w)
	assert.Equal(t, "must be a uint", details["room_id"])

	w, err = bind(t, `{"room_id":`)
	require.Error(t, err)
	_, details = errorBody(t, w)
	assert.NotEmpty(t, details["body"])
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("check_in", " 2025-06-01 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T00:00:00Z", d.Format("2006-01-02T15:04:05Z07:00"))

	_, err = parseDate("check_in", "01/06/2025")
	var appErr *services.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "must be YYYY-MM-DD", appErr.Fields["check_in"])
}

func TestPageMetaBounds(t *testing.T) {
	page, size := pageMeta(services.ListParams{Page: 0, PageSize: 500})
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)

	page, size = pageMeta(services.ListParams{Page: 3, PageSize: 50})
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, size)
}
