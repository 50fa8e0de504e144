package ports

import (
	"context"

	"hbuild/internal/types"
)

// BrokerPort publishes to and consumes from named queues. Deliveries are
// at-least-once: a delivery that is never acked may be seen again.
type BrokerPort interface {
	Publish(ctx context.Context, queue string, body string) error
	Consume(ctx context.Context, queue string) (<-chan types.Delivery, error)
	Close() error
}
