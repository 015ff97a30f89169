package services

import (
	"context"
	"errors"
	"math"
	"slices"

	"order-placement-service/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxLineQuantity keeps per-product sums well inside int64.
const maxLineQuantity = math.MaxInt32

// PlaceOrder atomically checks and decrements stock for every line item,
// creates a pending order and one cart row per line item. Either all of it
// commits or none of it does. Conflicts with concurrent placements are
// retried; validation and infrastructure failures are returned as-is.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uint64, items []domain.LineItem) (*domain.Placement, error) {
	ctx, span := s.tracer.Start(ctx, "order.place", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int("order.line_items", len(items)),
	))
	defer span.End()

	if err := validateLineItems(userID, items); err != nil {
		s.reject(ctx, span, userID, err)
		return nil, err
	}

	var order *domain.Order
	attempt := 0
	op := func() error {
		attempt++
		var err error
		order, err = s.placeOnce(ctx, userID, items)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrTransactionConflict) {
			s.conflictsCounter.Add(ctx, 1)
			s.log.Warn("Placement conflicted with a concurrent transaction",
				zap.Uint64("user_id", userID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxConflictRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		s.reject(ctx, span, userID, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", int64(order.ID)),
		attribute.String("order.total", order.TotalPrice.String()),
		attribute.Int("order.attempts", attempt),
	)
	s.placedCounter.Add(ctx, 1)
	s.log.Info("Order placed",
		zap.Uint64("order_id", order.ID),
		zap.Uint64("user_id", userID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.Int("attempts", attempt),
	)

	s.invalidateUser(ctx, userID)
	s.publishAsync(domain.EventOrderPlaced, domain.OrderPlacedEvent{
		OrderID:    order.ID,
		UserID:     userID,
		TotalPrice: order.TotalPrice,
		Items:      items,
		CreatedAt:  order.CreatedAt,
	})

	return &domain.Placement{OrderID: order.ID, Total: order.TotalPrice}, nil
}

// placeOnce runs one attempt inside a single transaction scope.
func (s *OrderService) placeOnce(ctx context.Context, userID uint64, items []domain.LineItem) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.place.attempt")
	defer span.End()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := distinctProductIDs(items)
	snapshot, err := tx.StockSnapshot(ctx, ids)
	if err != nil {
		return nil, err
	}

	decrements, total, err := applyLineItems(snapshot, items)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := tx.DecrementStock(ctx, id, decrements[id]); err != nil {
			return nil, err
		}
	}

	order := &domain.Order{
		UserID:     userID,
		TotalPrice: total,
		Status:     domain.StatusPending,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	cart := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		cart = append(cart, domain.CartItem{
			OrderID:   order.ID,
			UserID:    userID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	if err := tx.CreateCartItems(ctx, cart); err != nil {
		return nil, err
	}

	// A request abandoned by its caller must not commit.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.Items = cart
	return order, nil
}

func (s *OrderService) reject(ctx context.Context, span trace.Span, userID uint64, err error) {
	reason := failureReason(err)
	s.rejectedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	fields := []zap.Field{zap.Uint64("user_id", userID), zap.String("reason", reason), zap.Error(err)}
	if domain.IsValidation(err) {
		s.log.Info("Order placement rejected", fields...)
		return
	}
	s.log.Error("Order placement failed", fields...)
}

func validateLineItems(userID uint64, items []domain.LineItem) error {
	if userID == 0 {
		return domain.InvalidRequest("userId is required")
	}
	if len(items) == 0 {
		return domain.InvalidRequest("at least one line item is required")
	}
	for i, item := range items {
		if item.ProductID == 0 {
			return domain.InvalidRequest("item %d: productId is required", i)
		}
		if item.Quantity <= 0 {
			return domain.InvalidRequest("item %d: quantity must be positive, got %d", i, item.Quantity)
		}
		if item.Quantity > maxLineQuantity {
			return domain.InvalidRequest("item %d: quantity %d exceeds %d", i, item.Quantity, maxLineQuantity)
		}
	}
	return nil
}

// distinctProductIDs returns the referenced product ids in ascending order,
// which is also the order stock rows are locked and written in.
func distinctProductIDs(items []domain.LineItem) []uint64 {
	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// applyLineItems validates items in submitted order against one snapshot.
// Quantities for a repeated product accumulate, so the same stock is never
// counted twice.
func applyLineItems(snapshot map[uint64]domain.StockLevel, items []domain.LineItem) (map[uint64]int64, decimal.Decimal, error) {
	requested := make(map[uint64]int64, len(snapshot))
	total := decimal.Zero

	for _, item := range items {
		level, ok := snapshot[item.ProductID]
		if !ok {
			return nil, decimal.Zero, &domain.ProductNotFoundError{ProductID: item.ProductID}
		}

		want := requested[item.ProductID] + item.Quantity
		if level.Stock < want {
			return nil, decimal.Zero, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: want,
				Available: level.Stock,
			}
		}

		requested[item.ProductID] = want
		total = total.Add(level.Price.Mul(decimal.NewFromInt(item.Quantity)))
		if total.GreaterThan(domain.MaxOrderTotal) {
			return nil, decimal.Zero, domain.InvalidRequest("order total exceeds %s", domain.MaxOrderTotal.StringFixed(2))
		}
	}
	return requested, total, nil
}
