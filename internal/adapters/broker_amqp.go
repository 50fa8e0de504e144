package adapters

import (
	"context"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

// AMQPBroker maps each queue name onto a durable AMQP queue on the
// default exchange. Deliveries are acked manually.
type AMQPBroker struct {
	conn *amqp.Connection

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
}

func NewAMQPBroker(url string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, brokerError("failed to connect to amqp broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, brokerError("failed to open amqp channel", err)
	}
	return &AMQPBroker{conn: conn, pub: ch, declared: map[string]bool{}}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (b *AMQPBroker) Publish(ctx context.Context, queue string, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.declared[queue] {
		if err := declareQueue(b.pub, queue); err != nil {
			return brokerError("failed to declare queue "+queue, err)
		}
		b.declared[queue] = true
	}
	err := b.pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(body),
	})
	if err != nil {
		return brokerError("failed to publish to "+queue, err)
	}
	return nil
}

// Consume opens a dedicated channel with a prefetch of one so that a
// runner holds at most one unacked job.
func (b *AMQPBroker) Consume(ctx context.Context, queue string) (<-chan types.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, brokerError("failed to open amqp channel", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, brokerError("failed to declare queue "+queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, brokerError("failed to set prefetch", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, brokerError("failed to consume "+queue, err)
	}

	out := make(chan types.Delivery)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Ctx(ctx).Warn().Str("queue", queue).Msg("amqp delivery channel closed")
					return
				}
				delivery := types.Delivery{
					Body: string(d.Body),
					Ack:  func() error { return d.Ack(false) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if err := b.conn.Close(); err != nil && err != amqp.ErrClosed {
		return brokerError("failed to close amqp connection", err)
	}
	return nil
}

func brokerError(msg string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

var _ ports.BrokerPort = (*AMQPBroker)(nil)
