package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrInfrastructure      = errors.New("infrastructure failure")
)

type ProductNotFoundError struct {
	ProductID uint64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

type InsufficientStockError struct {
	ProductID uint64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidRequest wraps ErrInvalidRequest with the reason the input was rejected.
func InvalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Infrastructure marks err as a storage or transport fault.
func Infrastructure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInfrastructure, err)
}

// IsValidation reports whether err is a business-rule or input failure.
// Validation failures are never retried.
func IsValidation(err error) bool {
	if errors.Is(err, ErrInvalidRequest) {
		return true
	}
	var notFound *ProductNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	var insufficient *InsufficientStockError
	return errors.As(err, &insufficient)
}
