package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment sub-states of an order.
const (
	PaymentStatusNone          = "none"
	PaymentStatusIntentCreated = "intent_created"
	PaymentStatusInGateway     = "in_gateway"
	PaymentStatusVerified      = "verified"
	PaymentStatusFailed        = "failed"
	PaymentStatusExpired       = "expired"
	PaymentStatusRefunded      = "refunded"
)

// Payment methods.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodUPI      = "upi"
	MethodRazorpay = "razorpay"
)

// Payment is the gateway intent tied 1:1 to an order in pending_payment.
// Cash and terminal-card orders record the method but never hold an intent.
type Payment struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"uniqueIndex;not null" json:"order_id"`
	Order            Order           `gorm:"foreignKey:OrderID" json:"-"`
	Method           string          `gorm:"type:varchar(20);not null;default:'cash'" json:"method"`
	Status           string          `gorm:"type:varchar(20);not null;default:'none'" json:"status"`
	Amount           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	GatewayOrderID   string          `gorm:"type:varchar(64);index" json:"gateway_order_id"`
	GatewayPaymentID string          `gorm:"type:varchar(64)" json:"gateway_payment_id"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	VerifiedAt       *time.Time      `json:"verified_at,omitempty"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}
