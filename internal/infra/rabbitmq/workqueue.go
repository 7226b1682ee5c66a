package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// WorkQueue gives visibility-timeout semantics to a RabbitMQ queue. Messages
// are pulled with basic.get and left unacknowledged while leased; when a
// lease's window lapses the message is nacked back onto the queue.
type WorkQueue struct {
	conn              *amqp.Connection
	channel           *amqp.Channel
	queue             string
	defaultVisibility time.Duration
	pollInterval      time.Duration
	logger            *zap.Logger

	mu     sync.Mutex
	leases map[string]*leaseState
}

type leaseState struct {
	delivery amqp.Delivery
	timer    *time.Timer
	released bool
}

type WorkQueueConfig struct {
	URL             string
	Queue           string
	CompletionQueue string
	DLQ             string
	// QueueType is "classic" or "quorum" for the task queue. Only quorum
	// queues report x-delivery-count.
	QueueType string
	// DefaultVisibility applies from receipt until the first extension.
	DefaultVisibility time.Duration
	PollInterval      time.Duration
}

func NewWorkQueue(cfg WorkQueueConfig, logger *zap.Logger) (*WorkQueue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.CompletionQueue, cfg.DLQ} {
		if q == "" {
			continue
		}
		var args amqp.Table
		if q == cfg.Queue {
			args = taskQueueArgs(cfg.QueueType)
		}
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return newWorkQueue(conn, ch, cfg, logger), nil
}

func taskQueueArgs(queueType string) amqp.Table {
	if queueType == "quorum" {
		return amqp.Table{"x-queue-type": "quorum"}
	}
	return nil
}

func newWorkQueue(conn *amqp.Connection, ch *amqp.Channel, cfg WorkQueueConfig, logger *zap.Logger) *WorkQueue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.DefaultVisibility <= 0 {
		cfg.DefaultVisibility = 30 * time.Second
	}
	return &WorkQueue{
		conn:              conn,
		channel:           ch,
		queue:             cfg.Queue,
		defaultVisibility: cfg.DefaultVisibility,
		pollInterval:      cfg.PollInterval,
		logger:            logger,
		leases:            make(map[string]*leaseState),
	}
}

// Receive polls the queue until a message arrives or wait elapses.
func (q *WorkQueue) Receive(ctx context.Context, wait time.Duration) (*entity.Lease, error) {
	deadline := time.Now().Add(wait)
	for {
		d, ok, err := q.channel.Get(q.queue, false)
		if err != nil {
			return nil, fmt.Errorf("%w: get from %s: %w", entity.ErrLease, q.queue, err)
		}
		if ok {
			return q.lease(d), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(q.pollInterval, remaining)):
		}
	}
}

func (q *WorkQueue) lease(d amqp.Delivery) *entity.Lease {
	id := strconv.FormatUint(d.DeliveryTag, 10)
	messageID := d.MessageId
	if messageID == "" {
		messageID = id
	}

	st := &leaseState{delivery: d}
	q.mu.Lock()
	st.timer = time.AfterFunc(q.defaultVisibility, func() { q.expire(id) })
	q.leases[id] = st
	q.mu.Unlock()

	return &entity.Lease{
		ID:            id,
		MessageID:     messageID,
		Body:          d.Body,
		DeliveryCount: deliveryCount(d),
		ReceivedAt:    time.Now().UTC(),
	}
}

// ExtendVisibility restarts the lease's window at d from now.
func (q *WorkQueue) ExtendVisibility(_ context.Context, lease *entity.Lease, d time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.leases[lease.ID]
	if !ok || st.released {
		return fmt.Errorf("%w: lease %s already expired", entity.ErrLease, lease.ID)
	}
	if !st.timer.Stop() {
		return fmt.Errorf("%w: lease %s expiring", entity.ErrLease, lease.ID)
	}
	st.timer.Reset(d)
	return nil
}

// Delete acknowledges the message, removing it from the queue for good.
func (q *WorkQueue) Delete(_ context.Context, lease *entity.Lease) error {
	q.mu.Lock()
	st, ok := q.leases[lease.ID]
	if !ok || st.released {
		q.mu.Unlock()
		return fmt.Errorf("%w: lease %s already expired", entity.ErrLease, lease.ID)
	}
	st.timer.Stop()
	st.released = true
	delete(q.leases, lease.ID)
	q.mu.Unlock()

	if err := st.delivery.Ack(false); err != nil {
		return fmt.Errorf("%w: ack %s: %w", entity.ErrLease, lease.ID, err)
	}
	return nil
}

func (q *WorkQueue) expire(id string) {
	q.mu.Lock()
	st, ok := q.leases[id]
	if !ok || st.released {
		q.mu.Unlock()
		return
	}
	st.released = true
	delete(q.leases, id)
	q.mu.Unlock()

	if err := st.delivery.Nack(false, true); err != nil {
		q.logger.Error("failed to requeue expired lease", zap.String("lease_id", id), zap.Error(err))
		return
	}
	q.logger.Info("lease visibility lapsed, message requeued", zap.String("lease_id", id))
}

// Close requeues every outstanding lease and closes the connection.
func (q *WorkQueue) Close() error {
	q.mu.Lock()
	pending := make([]*leaseState, 0, len(q.leases))
	for id, st := range q.leases {
		st.timer.Stop()
		st.released = true
		pending = append(pending, st)
		delete(q.leases, id)
	}
	q.mu.Unlock()

	for _, st := range pending {
		_ = st.delivery.Nack(false, true)
	}
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// deliveryCount reports how many times the message has been delivered,
// counting this delivery. Quorum queues carry x-delivery-count; classic
// queues only say whether the message was delivered before.
func deliveryCount(d amqp.Delivery) int {
	if d.Headers != nil {
		switch v := d.Headers["x-delivery-count"].(type) {
		case int64:
			return int(v) + 1
		case int32:
			return int(v) + 1
		case int:
			return v + 1
		}
	}
	if d.Redelivered {
		return 2
	}
	return 1
}
