package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockOutbox is a pending-stock-apply marker. ConfirmPayment writes these in
// the same transaction as the order status flip; a single background worker
// drains them in FIFO order into the stock ledger. The unique index forbids a
// double apply of the same (order, item, kind, product).
type StockOutbox struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TheaterID   uint            `gorm:"index;not null" json:"theater_id"`
	OrderID     uint            `gorm:"uniqueIndex:idx_stock_apply,priority:1;not null" json:"order_id"`
	ItemIndex   int             `gorm:"uniqueIndex:idx_stock_apply,priority:2;not null" json:"item_index"`
	Kind        string          `gorm:"type:varchar(12);uniqueIndex:idx_stock_apply,priority:3;not null" json:"kind"`
	ProductID   uint            `gorm:"uniqueIndex:idx_stock_apply,priority:4;not null" json:"product_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantity"`
	StockUnit   string          `gorm:"type:varchar(5);not null" json:"stock_unit"`
	Processed   bool            `gorm:"index;not null;default:false" json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}
