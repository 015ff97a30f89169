package domain

import "github.com/shopspring/decimal"

// Product is owned by the catalog. Placement only reads price and decrements stock.
type Product struct {
	ID    uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Name  string          `json:"name" gorm:"size:255;not null"`
	Stock int64           `json:"stock" gorm:"not null;check:stock >= 0"`
	Price decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
}

// StockLevel is the stock and unit price of one product as read inside a
// placement transaction.
type StockLevel struct {
	Stock int64
	Price decimal.Decimal
}

type LineItem struct {
	ProductID uint64 `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type Placement struct {
	OrderID uint64          `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
}
