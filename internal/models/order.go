package models

import "time"

type OrderStatus string

const (
	StatusCreated  OrderStatus = "created"
	StatusInWork   OrderStatus = "in_work"
	StatusGathered OrderStatus = "gathered"
	StatusSent     OrderStatus = "sent"
	StatusShipped  OrderStatus = "shipped"
)

// Column widths of Order.Status and Order.DeliveryInterval, in characters.
const (
	MaxStatusLen   = 20
	MaxIntervalLen = 100
)

// Lifecycle lists the fulfillment statuses in order, created first and shipped last.
var Lifecycle = []OrderStatus{StatusCreated, StatusInWork, StatusGathered, StatusSent, StatusShipped}

var statusTitles = map[OrderStatus]string{
	StatusCreated:  "Created",
	StatusInWork:   "In work",
	StatusGathered: "Gathered",
	StatusSent:     "Sent",
	StatusShipped:  "Shipped",
}

func (s OrderStatus) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

// Position returns the index of s in Lifecycle, or -1 for an unrecognized status.
func (s OrderStatus) Position() int {
	for i, st := range Lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

type Order struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UserID           uint        `gorm:"index;not null" json:"user_id"`
	User             User        `json:"-"`
	Status           OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	DesiredDelivery  *time.Time  `json:"desired_delivery,omitempty"`
	DeliveryInterval string      `gorm:"size:100" json:"delivery_interval,omitempty"`
	Comment          string      `json:"comment,omitempty"`
	ReceiptFilename  string      `gorm:"size:200" json:"receipt_filename,omitempty"`
	Items            []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

type OrderItem struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	OrderID   uint    `gorm:"index;not null" json:"order_id"`
	ProductID uint    `gorm:"index;not null" json:"product_id"`
	Product   Product `json:"product"`
	Quantity  int     `gorm:"not null" json:"quantity"`
}

// StatusChange records every admin status update, flagging the ones that leave the linear lifecycle.
type StatusChange struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"index;not null" json:"order_id"`
	FromStatus OrderStatus `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus   OrderStatus `gorm:"type:varchar(20)" json:"to_status"`
	Skipped    bool        `json:"skipped"`
	Backward   bool        `json:"backward"`
	Unknown    bool        `json:"unknown"`
	ChangedBy  uint        `json:"changed_by"`
	CreatedAt  time.Time   `json:"created_at"`
}
