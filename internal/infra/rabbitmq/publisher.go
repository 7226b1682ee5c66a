package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes to queues through the default exchange with publisher
// confirms enabled, so a publish only succeeds once the broker has taken
// the message.
type Publisher struct {
	channel *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{channel: ch}, nil
}

func (p *Publisher) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	conf, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %w", entity.ErrPublish, queue, err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: confirm from %s: %w", entity.ErrPublish, queue, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker nacked publish to %s", entity.ErrPublish, queue)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

type CompletionPublisher struct {
	pub   *Publisher
	queue string
}

func NewCompletionPublisher(pub *Publisher, queue string) *CompletionPublisher {
	return &CompletionPublisher{pub: pub, queue: queue}
}

func (cp *CompletionPublisher) PublishCompletion(ctx context.Context, body []byte, contentType string) error {
	return cp.pub.publish(ctx, cp.queue, amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, dp.queue, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"x-dlq-reason": reason,
		},
	})
}
