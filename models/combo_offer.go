package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ComboOffer struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	TheaterID          uint            `gorm:"index;not null" json:"theater_id"`
	Name               string          `gorm:"type:varchar(255);not null" json:"name"`
	OfferPrice         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"offer_price"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percentage"`
	TaxRate            decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	GSTType            string          `gorm:"type:varchar(10);not null;default:'INCLUSIVE'" json:"gst_type"`
	IsActive           bool            `gorm:"not null;default:true" json:"is_active"`
	IsAvailable        bool            `gorm:"not null;default:true" json:"is_available"`
	Items              []ComboOfferItem `gorm:"foreignKey:ComboOfferID" json:"items"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

// ComboOfferItem is one component line: ordering the combo consumes
// Quantity units of the referenced product per combo sold.
type ComboOfferItem struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	ComboOfferID uint    `gorm:"index;not null" json:"combo_offer_id"`
	ProductID    uint    `gorm:"not null" json:"product_id"`
	Product      Product `gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"product"`
	Quantity     int     `gorm:"not null;default:1" json:"quantity"`
}

func (co *ComboOffer) Orderable() bool {
	return co.IsActive && co.IsAvailable
}
