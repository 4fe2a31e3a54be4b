package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/utils"
)

// DefaultIntentTTL is how long a gateway intent stays verifiable.
const DefaultIntentTTL = 15 * time.Minute

// PaymentService coordinates the three-step gateway handshake: create an
// intent tied to an order, verify the signed callback, finalize through the
// order state machine. Expired intents are swept into auto-cancel.
type PaymentService struct {
	DB       *gorm.DB
	Orders   *OrderService
	Gateway  *RazorpayService
	IntentTTL time.Duration

	sweepInterval time.Duration
	stopChan      chan struct{}
}

func NewPaymentService(db *gorm.DB, orders *OrderService, gateway *RazorpayService) *PaymentService {
	return &PaymentService{
		DB:            db,
		Orders:        orders,
		Gateway:       gateway,
		IntentTTL:     DefaultIntentTTL,
		sweepInterval: time.Minute,
		stopChan:      make(chan struct{}),
	}
}

// CreateIntent is idempotent per order: repeated calls return the existing
// intent while it is still live.
func (s *PaymentService) CreateIntent(theaterID, orderID uint) (*models.Payment, error) {
	order, err := s.Orders.Get(theaterID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPendingPayment {
		return nil, utils.NewAppError(utils.KindConflict,
			fmt.Sprintf("order %d is %s, not pending_payment", orderID, order.Status))
	}
	if !gatewayMethod(order.PaymentMethod) {
		return nil, utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("method %q does not use a gateway intent", order.PaymentMethod))
	}

	var existing models.Payment
	err = s.DB.Where("order_id = ?", orderID).First(&existing).Error
	if err == nil {
		switch existing.Status {
		case models.PaymentStatusIntentCreated, models.PaymentStatusInGateway:
			return &existing, nil
		case models.PaymentStatusVerified:
			return nil, utils.NewAppError(utils.KindDuplicate, "payment already verified")
		}
		// failed/expired intents are replaced below
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	gatewayOrder, err := s.Gateway.CreateGatewayOrder(order.OrderNumber, order.GrandTotal)
	if err != nil {
		return nil, utils.WrapAppError(utils.KindTransient, "gateway order creation failed", err)
	}

	expiresAt := time.Now().Add(s.IntentTTL)
	payment := models.Payment{
		OrderID:        orderID,
		Method:         order.PaymentMethod,
		Status:         models.PaymentStatusIntentCreated,
		Amount:         order.GrandTotal,
		GatewayOrderID: gatewayOrder.ID,
		ExpiresAt:      &expiresAt,
	}
	if existing.ID != 0 {
		payment.ID = existing.ID
		payment.CreatedAt = existing.CreatedAt
	}
	if err := s.DB.Save(&payment).Error; err != nil {
		return nil, err
	}

	utils.InfoLogger.Printf("payment intent %s created for order %s (expires %s)",
		payment.GatewayOrderID, order.OrderNumber, expiresAt.Format(time.RFC3339))
	return &payment, nil
}

// VerifyRequest is the gateway callback the device relays to the server.
type VerifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

// Verify checks the callback signature and finalizes the order. Verifying the
// same (order, payment) pair again returns the cached verified state without
// re-appending any stock events. A bad signature marks the payment failed but
// leaves the order in pending_payment for retry until the intent expires.
func (s *PaymentService) Verify(req VerifyRequest) (*models.Order, error) {
	var payment models.Payment
	err := s.DB.Where("gateway_order_id = ?", req.RazorpayOrderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.KindValidation, "unknown gateway order id")
		}
		return nil, err
	}

	if payment.Status == models.PaymentStatusVerified {
		if payment.GatewayPaymentID == req.RazorpayPaymentID {
			var order models.Order
			if err := s.DB.Preload("Items").First(&order, payment.OrderID).Error; err != nil {
				return nil, err
			}
			return &order, nil
		}
		return nil, utils.NewAppError(utils.KindConflict, "payment already verified with a different payment id")
	}

	if payment.Status == models.PaymentStatusExpired ||
		(payment.ExpiresAt != nil && time.Now().After(*payment.ExpiresAt)) {
		return nil, utils.NewAppError(utils.KindPaymentExpired, "payment intent has expired")
	}

	if !s.Gateway.VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		payment.Status = models.PaymentStatusFailed
		if err := s.DB.Save(&payment).Error; err != nil {
			utils.ErrorLogger.Printf("failed to record failed verification for payment %d: %v", payment.ID, err)
		}
		utils.ErrorLogger.Printf("payment verification failed for order %d (gateway order %s)",
			payment.OrderID, payment.GatewayOrderID)
		return nil, utils.NewAppError(utils.KindPaymentVerificationFailed, "signature verification failed")
	}

	order, err := s.Orders.ConfirmPayment(payment.OrderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	payment.Status = models.PaymentStatusVerified
	payment.GatewayPaymentID = req.RazorpayPaymentID
	payment.VerifiedAt = &now
	if err := s.DB.Save(&payment).Error; err != nil {
		return nil, err
	}

	utils.InfoLogger.Printf("payment verified for order %s (payment id %s)",
		order.OrderNumber, req.RazorpayPaymentID)
	return order, nil
}

// PaymentChannelConfig is what a front-end needs to drive the gateway.
type PaymentChannelConfig struct {
	Channel        string   `json:"channel"`
	Methods        []string `json:"methods"`
	GatewayKeyID   string   `json:"gateway_key_id"`
	IntentExpiryMS int64    `json:"intent_expiry_ms"`
}

// ChannelConfig returns the accepted methods and gateway public key for a
// channel. The kiosk never receives cash.
func (s *PaymentService) ChannelConfig(channel string) (*PaymentChannelConfig, error) {
	methods := AcceptedMethods(channel)
	if methods == nil {
		return nil, utils.NewAppError(utils.KindValidation, fmt.Sprintf("unknown channel %q", channel))
	}
	return &PaymentChannelConfig{
		Channel:        channel,
		Methods:        methods,
		GatewayKeyID:   s.Gateway.KeyID(),
		IntentExpiryMS: s.IntentTTL.Milliseconds(),
	}, nil
}

// StartExpirySweeper launches the goroutine that expires stale intents and
// auto-cancels their orders.
func (s *PaymentService) StartExpirySweeper() {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepExpired()
			case <-s.stopChan:
				return
			}
		}
	}()
	utils.InfoLogger.Println("payment expiry sweeper started")
}

func (s *PaymentService) StopExpirySweeper() {
	close(s.stopChan)
}

// SweepExpired expires every live intent past its deadline and cancels the
// order unless verification arrived first.
func (s *PaymentService) SweepExpired() {
	var payments []models.Payment
	err := s.DB.Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
		[]string{models.PaymentStatusIntentCreated, models.PaymentStatusInGateway},
		time.Now()).
		Find(&payments).Error
	if err != nil {
		utils.ErrorLogger.Printf("expiry sweep query failed: %v", err)
		return
	}

	for _, payment := range payments {
		payment.Status = models.PaymentStatusExpired
		if err := s.DB.Save(&payment).Error; err != nil {
			utils.ErrorLogger.Printf("failed to expire payment %d: %v", payment.ID, err)
			continue
		}
		if _, err := s.Orders.Cancel(payment.OrderID, "payment intent expired", ""); err != nil {
			utils.ErrorLogger.Printf("failed to auto-cancel order %d: %v", payment.OrderID, err)
			continue
		}
		utils.InfoLogger.Printf("payment %d expired, order %d auto-cancelled", payment.ID, payment.OrderID)
	}
}
