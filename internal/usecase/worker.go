package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"go.uber.org/zap"
)

// JobExecutor processes one leased message.
type JobExecutor interface {
	Execute(ctx context.Context, lease *entity.Lease) (entity.JobState, error)
}

// Worker is the outer polling loop. It processes one job at a time and
// survives every job-level failure.
type Worker struct {
	queue    port.WorkQueue
	executor JobExecutor
	pollWait time.Duration
	backoff  time.Duration
	logger   *zap.Logger
}

func NewWorker(queue port.WorkQueue, executor JobExecutor, pollWait, backoff time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		queue:    queue,
		executor: executor,
		pollWait: pollWait,
		backoff:  backoff,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. A job already in progress when ctx is
// cancelled runs to completion first: its context is detached from ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker loop started", zap.Duration("poll_wait", w.pollWait))
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker loop stopped")
			return nil
		}

		lease, err := w.queue.Receive(ctx, w.pollWait)
		metrics.Heartbeat()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("failed to receive message", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
			continue
		}
		if lease == nil {
			continue
		}

		w.process(context.WithoutCancel(ctx), lease)
	}
}

func (w *Worker) process(ctx context.Context, lease *entity.Lease) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked, lease abandoned",
				zap.String("lease_id", lease.ID),
				zap.Stringer("state", entity.StateLeaseAbandoned),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()

	state, _ := w.executor.Execute(ctx, lease)
	w.logger.Debug("job finished", zap.String("lease_id", lease.ID), zap.Stringer("state", state))
}
