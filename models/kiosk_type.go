package models

import "time"

type KioskType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TheaterID uint      `gorm:"index;not null" json:"theater_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
