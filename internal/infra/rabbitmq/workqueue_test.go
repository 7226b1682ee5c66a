package rabbitmq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAcker struct {
	mu    sync.Mutex
	acked []uint64
	nack  []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nack = append(a.nack, tag)
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcker) requeued() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.nack...)
}

func newTestQueue(visibility time.Duration) *WorkQueue {
	return newWorkQueue(nil, nil, WorkQueueConfig{Queue: "tasks", DefaultVisibility: visibility}, zap.NewNop())
}

func delivery(acker amqp.Acknowledger, tag uint64) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, MessageId: "m-1", Body: []byte(`{}`)}
}

func TestLeaseExpiresAndRequeues(t *testing.T) {
	acker := &fakeAcker{}
	q := newTestQueue(20 * time.Millisecond)

	l := q.lease(delivery(acker, 7))
	assert.Equal(t, "7", l.ID)
	assert.Equal(t, "m-1", l.MessageID)

	require.Eventually(t, func() bool { return len(acker.requeued()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{7}, acker.requeued())

	err := q.Delete(context.Background(), l)
	assert.ErrorIs(t, err, entity.ErrLease, "expired lease cannot be deleted")
	err = q.ExtendVisibility(context.Background(), l, time.Minute)
	assert.ErrorIs(t, err, entity.ErrLease)
}

func TestExtendVisibilityKeepsLease(t *testing.T) {
	acker := &fakeAcker{}
	q := newTestQueue(30 * time.Millisecond)

	l := q.lease(delivery(acker, 1))
	require.NoError(t, q.ExtendVisibility(context.Background(), l, time.Minute))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, acker.requeued())

	require.NoError(t, q.Delete(context.Background(), l))
	assert.Equal(t, []uint64{1}, acker.acked)
	assert.Empty(t, acker.requeued())
}

func TestDeleteStopsExpiry(t *testing.T) {
	acker := &fakeAcker{}
	q := newTestQueue(20 * time.Millisecond)

	l := q.lease(delivery(acker, 3))
	require.NoError(t, q.Delete(context.Background(), l))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, acker.requeued())
	assert.ErrorIs(t, q.Delete(context.Background(), l), entity.ErrLease)
}

func TestCloseRequeuesOutstandingLeases(t *testing.T) {
	acker := &fakeAcker{}
	q := newTestQueue(time.Minute)

	q.lease(delivery(acker, 1))
	q.lease(delivery(acker, 2))
	require.NoError(t, q.Close())

	assert.ElementsMatch(t, []uint64{1, 2}, acker.requeued())
}

func TestLeaseFallsBackToDeliveryTag(t *testing.T) {
	q := newTestQueue(time.Minute)
	d := delivery(&fakeAcker{}, 9)
	d.MessageId = ""

	l := q.lease(d)
	assert.Equal(t, "9", l.MessageID)
	q.Close()
}

func TestDeliveryCount(t *testing.T) {
	assert.Equal(t, 1, deliveryCount(amqp.Delivery{}))
	assert.Equal(t, 2, deliveryCount(amqp.Delivery{Redelivered: true}))
	assert.Equal(t, 4, deliveryCount(amqp.Delivery{
		Redelivered: true,
		Headers:     amqp.Table{"x-delivery-count": int64(3)},
	}))
	assert.Equal(t, 2, deliveryCount(amqp.Delivery{
		Headers: amqp.Table{"x-delivery-count": int32(1)},
	}))
}

func TestTaskQueueArgs(t *testing.T) {
	assert.Nil(t, taskQueueArgs("classic"))
	assert.Nil(t, taskQueueArgs(""))
	assert.Equal(t, amqp.Table{"x-queue-type": "quorum"}, taskQueueArgs("quorum"))
}

func TestLeaseReportsRedeliveryOfClassicQueue(t *testing.T) {
	q := newTestQueue(time.Minute)
	defer q.Close()

	d := delivery(&fakeAcker{}, 1)
	first := q.lease(d)
	assert.Equal(t, 1, first.DeliveryCount)

	// a classic queue only flags the redelivery, whatever the real count
	d.DeliveryTag = 2
	d.Redelivered = true
	again := q.lease(d)
	assert.Equal(t, 2, again.DeliveryCount)
}
