package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderPlacedEvent struct {
	OrderID    uint64          `json:"orderId"`
	UserID     uint64          `json:"userId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Items      []LineItem      `json:"items"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type OrderStatusChangedEvent struct {
	OrderID   uint64      `json:"orderId"`
	UserID    uint64      `json:"userId"`
	Status    OrderStatus `json:"status"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
