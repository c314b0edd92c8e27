package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:80;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	IsAdmin      bool      `gorm:"not null" json:"is_admin"`
	IsBlocked    bool      `gorm:"not null" json:"is_blocked"`
	Address      string    `gorm:"size:200" json:"address"`
	Organization string    `gorm:"size:200" json:"organization"`
	Phone        *string   `gorm:"size:50;uniqueIndex" json:"phone,omitempty"`
	DeliveryTime string    `gorm:"size:50" json:"delivery_time"`
	OIDCSubject  *string   `gorm:"uniqueIndex" json:"-"` // OpenID Connect identifier
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}
