package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock event kinds. Opening lives as a column on StockMonth; everything else
// is an entry. The sign convention is fixed by EntrySign below.
const (
	StockKindInvord     = "invord"
	StockKindDirect     = "direct"
	StockKindSales      = "sales"
	StockKindAddon      = "addon"
	StockKindAdjustment = "adjustment"
	StockKindCancel     = "cancel"
	StockKindExpired    = "expired"
	StockKindDamage     = "damage"
)

// EntrySign returns +1 for kinds that add stock and -1 for kinds that remove
// it. Cancel restores stock: it undoes a prior sales entry, so sales followed
// by cancel nets to zero. Adjustment entries are the one kind whose quantity
// may itself be negative; their sign rides on the quantity.
func EntrySign(kind string) int {
	switch kind {
	case StockKindInvord, StockKindDirect, StockKindAdjustment, StockKindCancel:
		return 1
	case StockKindSales, StockKindAddon, StockKindExpired, StockKindDamage:
		return -1
	default:
		return 0
	}
}

// StockMonth is the per-(theater, product, year, month) ledger page.
// ClosingBalance is a denormalized cache of opening + signed entries; readers
// recompute and repair it, never trust it as a source of truth.
type StockMonth struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	TheaterID      uint            `gorm:"uniqueIndex:idx_stock_month,priority:1;not null" json:"theater_id"`
	ProductID      uint            `gorm:"uniqueIndex:idx_stock_month,priority:2;not null" json:"product_id"`
	Product        Product         `gorm:"foreignKey:ProductID" json:"-"`
	Year           int             `gorm:"uniqueIndex:idx_stock_month,priority:3;not null" json:"year"`
	Month          int             `gorm:"uniqueIndex:idx_stock_month,priority:4;not null" json:"month"`
	StockUnit      string          `gorm:"type:varchar(5);not null" json:"stock_unit"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0" json:"opening_balance"`
	ClosingBalance decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0" json:"closing_balance"`
	Entries        []StockEntry    `gorm:"foreignKey:StockMonthID" json:"entries"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// StockEntry keeps the original quantity and unit as submitted plus the
// quantity normalized to the month's stock unit. Entries fold in
// (date asc, seq asc) order.
type StockEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	StockMonthID  uint            `gorm:"index;not null" json:"stock_month_id"`
	Date          time.Time       `gorm:"index;not null" json:"date"`
	Seq           int             `gorm:"not null" json:"seq"`
	Kind          string          `gorm:"type:varchar(12);not null" json:"kind"`
	Quantity      decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantity"`
	Unit          string          `gorm:"type:varchar(5);not null" json:"unit"`
	NormalizedQty decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"normalized_qty"`
	Note          string          `gorm:"type:varchar(255)" json:"note,omitempty"`
	OrderID       *uint           `gorm:"index" json:"order_id,omitempty"`
	ItemIndex     *int            `json:"item_index,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}
