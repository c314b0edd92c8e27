package models

import "time"

type Product struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description   string    `json:"description"`
	Price         float64   `gorm:"not null" json:"price"`
	Quantity      int       `gorm:"not null" json:"quantity"`
	IsLimited     bool      `gorm:"not null" json:"is_limited"`
	IsPublished   bool      `gorm:"not null" json:"is_published"`
	ImageURL      string    `gorm:"size:200" json:"image_url,omitempty"`
	ImageFilename string    `gorm:"size:200" json:"image_filename,omitempty"` // stored upload
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available reports whether qty units can be held against the current stock.
func (p Product) Available(qty int) bool {
	return !p.IsLimited || qty <= p.Quantity
}
