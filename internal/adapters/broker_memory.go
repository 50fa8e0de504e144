package adapters

import (
	"context"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

const memoryQueueDepth = 1024

// MemoryBroker is an in-process broker for single-host runs and tests.
// Unacked deliveries are not redelivered.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan string
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: map[string]chan string{}}
}

func (b *MemoryBroker) queue(name string) (chan string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("broker is closed")
	}
	q, ok := b.queues[name]
	if !ok {
		q = make(chan string, memoryQueueDepth)
		b.queues[name] = q
	}
	return q, nil
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, body string) error {
	q, err := b.queue(queue)
	if err != nil {
		return err
	}
	select {
	case q <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, queue string) (<-chan types.Delivery, error) {
	q, err := b.queue(queue)
	if err != nil {
		return nil, err
	}
	out := make(chan types.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case body := <-q:
				delivery := types.Delivery{Body: body, Ack: func() error { return nil }}
				select {
				case out <- delivery:
				case <-ctx.Done():
					// put it back for the next consumer
					select {
					case q <- body:
					default:
					}
					return
				}
			}
		}
	}()
	return out, nil
}

// Pending reports how many messages wait on a queue.
func (b *MemoryBroker) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var _ ports.BrokerPort = (*MemoryBroker)(nil)
