package rabbitmq

import "context"

// PublisherInterface routes order events by pattern. Callers publish only
// after the originating transaction has committed.
type PublisherInterface interface {
	Publish(ctx context.Context, pattern string, data any) error
}

var _ PublisherInterface = (*Publisher)(nil)
