package services

import (
	"context"
	"sync"

	"order-placement-service/internal/infra/rabbitmq"
	"order-placement-service/internal/repository"

	"github.com/cenkalti/backoff/v4"
)

type publishedEvent struct {
	pattern string
	data    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

var _ rabbitmq.PublisherInterface = (*recordingPublisher)(nil)

func (p *recordingPublisher) Publish(ctx context.Context, pattern string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{pattern: pattern, data: data})
	return p.err
}

func (p *recordingPublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func newTestService(store repository.Store, repo repository.OrderRepository, pub rabbitmq.PublisherInterface, opts ...Option) *OrderService {
	opts = append([]Option{WithBackOff(zeroBackOff)}, opts...)
	return NewOrderService(store, repo, pub, opts...)
}
