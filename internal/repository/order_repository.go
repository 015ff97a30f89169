package repository

import (
	"context"

	"order-placement-service/internal/domain"
)

// Store opens placement transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transaction scope. Nothing written through it is visible to
// other transactions before Commit. Rollback after Commit is a no-op.
type Tx interface {
	// StockSnapshot reads stock and price for ids in one round trip and
	// holds an exclusive row lock on every product it returns until the
	// scope ends. Unknown ids are absent from the result.
	StockSnapshot(ctx context.Context, ids []uint64) (map[uint64]domain.StockLevel, error)
	DecrementStock(ctx context.Context, productID uint64, qty int64) error
	CreateOrder(ctx context.Context, order *domain.Order) error
	CreateCartItems(ctx context.Context, items []domain.CartItem) error
	Commit() error
	Rollback() error
}

type OrderRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	FindByUserID(ctx context.Context, userID uint64) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id uint64, status domain.OrderStatus) (*domain.Order, error)
	// Delete removes the order and its cart rows and returns the removed
	// order, or nil when no order has that id.
	Delete(ctx context.Context, id uint64) (*domain.Order, error)
}
