package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem references exactly one of ProductID or ComboOfferID. Pricing and
// stock consumption are resolved at placement time and frozen on the row;
// later catalog edits never change what an existing order consumed.
type OrderItem struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	OrderID      uint        `gorm:"index;not null" json:"order_id"`
	Order        Order       `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	ItemIndex    int         `gorm:"not null" json:"item_index"`
	ProductID    *uint       `json:"product_id,omitempty"`
	Product      *Product    `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	ComboOfferID *uint       `json:"combo_offer_id,omitempty"`
	ComboOffer   *ComboOffer `gorm:"foreignKey:ComboOfferID" json:"combo_offer,omitempty"`

	Name               string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity           int             `gorm:"not null" json:"quantity"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	TaxRate            decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	GSTType            string          `gorm:"type:varchar(10);not null" json:"gst_type"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percentage"`
	LineTotal          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"line_total"`

	// StockUnit and PerUnitConsumption describe a plain product line. Combo
	// lines expand into Components, one per referenced product.
	StockUnit          string          `gorm:"type:varchar(5)" json:"stock_unit"`
	PerUnitConsumption decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0" json:"per_unit_consumption"`
	Components         []OrderItemComponent `gorm:"foreignKey:OrderItemID" json:"components,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// OrderItemComponent is the frozen per-unit stock consumption of one product
// touched by an order line. Plain products have a single component; combos
// have one per offer component. Ledger writes are driven from these rows.
type OrderItemComponent struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderItemID uint            `gorm:"index;not null" json:"order_item_id"`
	ProductID   uint            `gorm:"not null" json:"product_id"`
	PerUnitQty  decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"per_unit_qty"`
	StockUnit   string          `gorm:"type:varchar(5);not null" json:"stock_unit"`
}
