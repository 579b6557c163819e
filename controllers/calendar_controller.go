package controllers

import (
	"net/http"

	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

type CalendarController struct {
	Auth *services.CalendarAuthService
}

func NewCalendarController(auth *services.CalendarAuthService) *CalendarController {
	return &CalendarController{Auth: auth}
}

// Init (GET /google-calendar/init) returns the consent page URL.
func (ctrl *CalendarController) Init(c *gin.Context) {
	url, err := ctrl.Auth.AuthURL(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("redirect") == "1" {
		c.Redirect(http.StatusFound, url)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"auth_url": url})
}

// Redirect (GET /google-calendar/redirect?code=&state=) is the OAuth callback.
func (ctrl *CalendarController) Redirect(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		utils.JSONError(c, http.StatusBadRequest, "error.calendarConsent", "Calendar authorization was denied", map[string]any{"error": msg})
		return
	}
	if err := ctrl.Auth.Complete(c.Request.Context(), c.Query("code"), c.Query("state")); err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"authorized": true})
}
