package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/utils"
)

type PaymentController struct {
	Payments *services.PaymentService
}

func NewPaymentController(payments *services.PaymentService) *PaymentController {
	return &PaymentController{Payments: payments}
}

// CreateIntent opens (or returns the live) gateway intent for an order in
// pending_payment.
func (pc *PaymentController) CreateIntent(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var input struct {
		OrderID uint `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	payment, err := pc.Payments.CreateIntent(theaterID, input.OrderID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Payment intent created", gin.H{
		"gateway_order_id": payment.GatewayOrderID,
		"gateway_key_id":   pc.Payments.Gateway.KeyID(),
		"amount":           payment.Amount.String(),
		"expires_at":       payment.ExpiresAt,
	})
}

// VerifyPayment relays the gateway callback through signature verification
// and, on success, finalizes the order to paid.
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	var req services.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := pc.Payments.Verify(req)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment verified", order)
}

// GetChannelConfig returns the methods and gateway public key for a channel.
func (pc *PaymentController) GetChannelConfig(c *gin.Context) {
	if _, err := strconv.ParseUint(c.Param("theater_id"), 10, 32); err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid theater_id"))
		return
	}

	config, err := pc.Payments.ChannelConfig(c.Param("channel"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment config", config)
}
