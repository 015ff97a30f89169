package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"order-placement-service/internal/domain"
	rabbit "order-placement-service/internal/infra/rabbitmq"
	"order-placement-service/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "order-placement-service/internal/services"

// OrderCache caches per-user order listings.
type OrderCache interface {
	UserOrders(ctx context.Context, userID uint64, load func(context.Context) ([]domain.Order, error)) ([]domain.Order, error)
	InvalidateUser(ctx context.Context, userID uint64) error
}

type OrderService struct {
	store     repository.Store
	repo      repository.OrderRepository
	publisher rabbit.PublisherInterface
	cache     OrderCache

	log                *zap.Logger
	tracer             trace.Tracer
	meter              metric.Meter
	maxConflictRetries int
	newBackOff         func() backoff.BackOff

	placedCounter    metric.Int64Counter
	rejectedCounter  metric.Int64Counter
	conflictsCounter metric.Int64Counter

	// in-flight event publishes
	pending sync.WaitGroup
}

type Option func(*OrderService)

func WithLogger(l *zap.Logger) Option {
	return func(s *OrderService) { s.log = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *OrderService) { s.tracer = t }
}

func WithMeter(m metric.Meter) Option {
	return func(s *OrderService) { s.meter = m }
}

// WithMaxConflictRetries bounds how many times a conflicting placement is
// re-run after the first attempt.
func WithMaxConflictRetries(n int) Option {
	return func(s *OrderService) { s.maxConflictRetries = n }
}

func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *OrderService) { s.newBackOff = f }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

func NewOrderService(store repository.Store, repo repository.OrderRepository, pub rabbit.PublisherInterface, opts ...Option) *OrderService {
	s := &OrderService{
		store:              store,
		repo:               repo,
		publisher:          pub,
		log:                zap.NewNop(),
		tracer:             otel.Tracer(instrumentationName),
		meter:              otel.Meter(instrumentationName),
		maxConflictRetries: 3,
		newBackOff:         defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.placedCounter = s.counter("orders.placed", "Orders committed by placement")
	s.rejectedCounter = s.counter("orders.rejected", "Placements that failed, by reason")
	s.conflictsCounter = s.counter("orders.placement.conflicts", "Placement attempts aborted by a conflicting transaction")
	return s
}

func (s *OrderService) counter(name, description string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		s.log.Warn("Failed to create counter", zap.String("name", name), zap.Error(err))
		return noop.Int64Counter{}
	}
	return c
}

func (s *OrderService) SetCache(cache OrderCache) {
	s.cache = cache
}

// Wait blocks until events queued by earlier calls have been published.
func (s *OrderService) Wait() {
	s.pending.Wait()
}

func (s *OrderService) GetOrderByID(ctx context.Context, id uint64) (*domain.Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *OrderService) GetOrdersByUser(ctx context.Context, userID uint64) ([]domain.Order, error) {
	if userID == 0 {
		return nil, domain.InvalidRequest("userId is required")
	}
	load := func(ctx context.Context) ([]domain.Order, error) {
		orders, err := s.repo.FindByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if orders == nil {
			orders = []domain.Order{}
		}
		return orders, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.UserOrders(ctx, userID, load)
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, id uint64, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.InvalidRequest("unknown status %q", status)
	}

	o, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrOrderNotFound
	}

	s.invalidateUser(ctx, o.UserID)
	s.publishAsync(domain.EventOrderStatusChanged, domain.OrderStatusChangedEvent{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		UpdatedAt: o.UpdatedAt,
	})
	return o, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id uint64) error {
	o, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return domain.ErrOrderNotFound
	}

	s.invalidateUser(ctx, o.UserID)
	return nil
}

func (s *OrderService) invalidateUser(ctx context.Context, userID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(context.WithoutCancel(ctx), userID); err != nil {
		s.log.Warn("Failed to invalidate order cache", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

// publishAsync sends the event after the originating transaction committed.
// Publishing failures never undo the committed write.
func (s *OrderService) publishAsync(pattern string, evt any) {
	if s.publisher == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, pattern, evt); err != nil {
			s.log.Error("Failed to publish event", zap.String("pattern", pattern), zap.Error(err))
			return
		}
		s.log.Debug("Published event", zap.String("pattern", pattern))
	}()
}

func failureReason(err error) string {
	var notFound *domain.ProductNotFoundError
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.As(err, &notFound):
		return "product_not_found"
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrTransactionConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "infrastructure"
	}
}
