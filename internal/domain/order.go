package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// MaxOrderTotal is the largest total the decimal(12,2) column holds.
var MaxOrderTotal = decimal.RequireFromString("9999999999.99")

type Order struct {
	ID         uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     uint64          `json:"userId" gorm:"not null;index"`
	TotalPrice decimal.Decimal `json:"totalPrice" gorm:"type:decimal(12,2);not null"`
	Status     OrderStatus     `json:"status" gorm:"type:enum('pending','confirmed','shipped','delivered','cancelled');default:'pending'"`
	Items      []CartItem      `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt  time.Time       `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

// CartItem associates a user with a product quantity accepted by a placement.
type CartItem struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64    `json:"orderId" gorm:"not null;index"`
	UserID    uint64    `json:"userId" gorm:"not null;index"`
	ProductID uint64    `json:"productId" gorm:"not null;index"`
	Quantity  int64     `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
