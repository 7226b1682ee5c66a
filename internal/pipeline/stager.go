package pipeline

import (
	"context"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"go.uber.org/zap"
)

// Stager moves frames from the staging channel to the bounded batching
// channel, converting each to its tensor form. The batching channel holds at
// most batchSize tensors; a full channel blocks the stager, which in turn
// blocks feeders once the staging channel fills.
type Stager struct {
	staging  chan entity.Frame
	batching chan entity.Tensor
	logger   *zap.Logger
}

func NewStager(stagingCap, batchSize int, logger *zap.Logger) *Stager {
	return &Stager{
		staging:  make(chan entity.Frame, stagingCap),
		batching: make(chan entity.Tensor, batchSize),
		logger:   logger,
	}
}

// Batching is the channel the batcher consumes.
func (s *Stager) Batching() <-chan entity.Tensor {
	return s.batching
}

// Run forwards frames in FIFO order until ctx is cancelled. It is started
// once per process and serves every job.
func (s *Stager) Run(ctx context.Context) {
	s.logger.Info("stager started", zap.Int("batch_capacity", cap(s.batching)))
	for {
		var f entity.Frame
		select {
		case <-ctx.Done():
			s.logger.Info("stager shutting down")
			return
		case f = <-s.staging:
		}

		t := entity.NewTensor(f)
		select {
		case <-ctx.Done():
			s.logger.Info("stager shutting down")
			return
		case s.batching <- t:
			metrics.BatchQueueDepth.Set(float64(len(s.batching)))
		}
	}
}

// Feed hands frames to the stager from a short-lived goroutine and returns
// immediately.
func (s *Stager) Feed(frames []entity.Frame) {
	go func() {
		for _, f := range frames {
			s.staging <- f
		}
	}()
}
