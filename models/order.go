package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle states.
const (
	OrderStatusDraft          = "draft"
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
	OrderStatusSyncFailed     = "sync_failed"
)

// Order sources. The source decides which payment methods are accepted.
const (
	SourceOnlinePOS  = "online-pos"
	SourceOfflinePOS = "offline-pos"
	SourceKiosk      = "kiosk"
)

// Cancel paths recorded when a paid or completed order is cancelled.
const (
	CancelPathRefund        = "refund"
	CancelPathAdminOverride = "admin_override"
)

type Order struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	TheaterID   uint    `gorm:"index;not null" json:"theater_id"`
	Theater     Theater `gorm:"foreignKey:TheaterID" json:"-"`
	OrderNumber string  `gorm:"type:varchar(30);uniqueIndex;not null" json:"order_number"`
	Source      string  `gorm:"type:varchar(15);not null" json:"source"`

	// CustomerName is free text; it defaults to the source tag and is the only
	// customer PII the pipeline carries.
	CustomerName string `gorm:"type:varchar(255);not null" json:"customer_name"`

	Status        string `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	PaymentMethod string `gorm:"type:varchar(20)" json:"payment_method"`

	SubTotal       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"sub_total"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"discount_amount"`
	CGSTAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"cgst_amount"`
	SGSTAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"sgst_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"tax_amount"`
	GrandTotal     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"grand_total"`

	Notes string `gorm:"type:text" json:"notes"`

	// Fingerprint is the opaque client-generated idempotency token; an exact
	// replay returns this order instead of creating a twin.
	Fingerprint string `gorm:"type:varchar(128);uniqueIndex;not null" json:"fingerprint"`

	PlacedAt     *time.Time `json:"placed_at,omitempty"`
	CancelReason string     `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	CancelPath   string     `gorm:"type:varchar(20)" json:"cancel_path,omitempty"`
	RefundAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"refund_amount"`

	CreatedAt time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time   `gorm:"not null" json:"updated_at"`
	Items     []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	Payment   *Payment    `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
}

// Terminal reports whether no further lifecycle transitions are allowed.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusRefunded
}
