package controllers

import (
	"io"
	"net/http"

	"rental-backend/payments"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type PaymentController struct {
	Reservations *services.ReservationService
}

func NewPaymentController(res *services.ReservationService) *PaymentController {
	return &PaymentController{Reservations: res}
}

// Webhook (POST /payments/webhook) needs the raw body for signature checks.
func (ctrl *PaymentController) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "error.invalidPayload", "Could not read request body", nil)
		return
	}
	out, err := ctrl.Reservations.HandleWebhook(c.Request.Context(), payload, c.GetHeader(payments.SignatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "event": out})
}
