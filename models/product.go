package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	GSTInclusive = "INCLUSIVE"
	GSTExclusive = "EXCLUSIVE"
)

type Product struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TheaterID   uint       `gorm:"index;not null" json:"theater_id"`
	CategoryID  uint       `gorm:"not null" json:"category_id"`
	Category    Category   `gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"category"`
	KioskTypeID *uint      `gorm:"index" json:"kiosk_type_id,omitempty"`
	KioskType   *KioskType `gorm:"foreignKey:KioskTypeID;references:ID" json:"kiosk_type,omitempty"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`

	// StockUnit is the canonical ledger unit: Nos, g, kg, mL or L.
	StockUnit    string `gorm:"type:varchar(5);not null;default:'Nos'" json:"stock_unit"`
	PackQuantity string `gorm:"type:varchar(30)" json:"pack_quantity"` // e.g. "150 ML"
	NoQty        int    `gorm:"not null;default:1" json:"no_qty"`

	BasePrice          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"base_price"`
	SalePrice          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"sale_price"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percentage"`
	TaxRate            decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	GSTType            string          `gorm:"type:varchar(10);not null;default:'INCLUSIVE'" json:"gst_type"`

	IsVeg       bool   `gorm:"not null;default:true" json:"is_veg"`
	ImageURLs   string `gorm:"type:text" json:"image_urls"` // JSON array of URLs
	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`
	IsAvailable bool   `gorm:"not null;default:true" json:"is_available"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// Orderable reports whether the product can be placed on an order.
func (p *Product) Orderable() bool {
	return p.IsActive && p.IsAvailable
}

// EffectivePrice is the sale price when set, otherwise the base price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.IsPositive() {
		return p.SalePrice
	}
	return p.BasePrice
}

// ResolveImage normalizes the stored image list into a single optional URL.
func (p *Product) ResolveImage() *string {
	if p.ImageURLs == "" {
		return nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(p.ImageURLs), &urls); err != nil {
		return nil
	}
	for _, u := range urls {
		if u != "" {
			return &u
		}
	}
	return nil
}
