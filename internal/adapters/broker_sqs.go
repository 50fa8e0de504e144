package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

const sqsWaitSeconds = 20

// SQSClient is the subset of the SQS API the broker uses.
type SQSClient interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, opts ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, opts ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSBroker uses one SQS queue per queue name. Ack deletes the message;
// an unacked message reappears after its visibility timeout.
type SQSBroker struct {
	client SQSClient

	mu   sync.Mutex
	urls map[string]string
}

// NewSQSBroker loads the default AWS configuration. A non-empty endpoint
// overrides the service URL, which is how local emulators are reached.
func NewSQSBroker(ctx context.Context, endpoint string) (*SQSBroker, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, brokerError("unable to load AWS config", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewSQSBrokerWithClient(client), nil
}

func NewSQSBrokerWithClient(client SQSClient) *SQSBroker {
	return &SQSBroker{client: client, urls: map[string]string{}}
}

func (b *SQSBroker) queueURL(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if url, ok := b.urls[name]; ok {
		return url, nil
	}
	// CreateQueue is idempotent for identical attributes and returns the
	// existing URL.
	out, err := b.client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		got, getErr := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
		if getErr != nil {
			return "", brokerError("failed to resolve queue "+name, errors.Join(err, getErr))
		}
		b.urls[name] = aws.ToString(got.QueueUrl)
		return b.urls[name], nil
	}
	b.urls[name] = aws.ToString(out.QueueUrl)
	return b.urls[name], nil
}

func (b *SQSBroker) Publish(ctx context.Context, queue string, body string) error {
	url, err := b.queueURL(ctx, queue)
	if err != nil {
		return err
	}
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return brokerError("failed to publish to "+queue, err)
	}
	return nil
}

func (b *SQSBroker) Consume(ctx context.Context, queue string) (<-chan types.Delivery, error) {
	url, err := b.queueURL(ctx, queue)
	if err != nil {
		return nil, err
	}
	out := make(chan types.Delivery)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			resp, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(url),
				MaxNumberOfMessages: 1,
				WaitTimeSeconds:     sqsWaitSeconds,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Ctx(ctx).Warn().Err(err).Str("queue", queue).Msg("sqs receive failed")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, msg := range resp.Messages {
				handle := msg.ReceiptHandle
				delivery := types.Delivery{
					Body: aws.ToString(msg.Body),
					Ack: func() error {
						_, err := b.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
							QueueUrl:      aws.String(url),
							ReceiptHandle: handle,
						})
						return err
					},
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *SQSBroker) Close() error { return nil }

var _ ports.BrokerPort = (*SQSBroker)(nil)
