package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of frames sent per inference call.
const DefaultBatchSize = 5

type Batcher struct {
	in        <-chan entity.Tensor
	predictor port.Predictor
	labels    LabelMap
	batchSize int
	logger    *zap.Logger
}

func NewBatcher(in <-chan entity.Tensor, predictor port.Predictor, labels LabelMap, batchSize int, logger *zap.Logger) *Batcher {
	return &Batcher{
		in:        in,
		predictor: predictor,
		labels:    labels,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run consumes exactly frameCount tensors and returns one prediction per
// frame in input order, along with the number of inference calls made. A
// batch is flushed when it reaches the batch size or holds the last
// expected frame.
//
// After a failed call the remaining tensors are still drained, without
// calling the server, so nothing of this job is left in the channel for the
// next one.
func (b *Batcher) Run(ctx context.Context, frameCount int) (entity.CompletionResult, int, error) {
	result := make(entity.CompletionResult, 0, frameCount)
	batch := make([]entity.Tensor, 0, b.batchSize)
	calls := 0
	var failed error

	for i := 0; i < frameCount; i++ {
		select {
		case <-ctx.Done():
			return nil, calls, ctx.Err()
		case t := <-b.in:
			metrics.BatchQueueDepth.Set(float64(len(b.in)))
			if failed != nil {
				continue
			}
			batch = append(batch, t)
		}

		if len(batch) < b.batchSize && i != frameCount-1 {
			continue
		}

		b.logger.Debug("flushing batch", zap.Int("frame", i), zap.Int("batch", len(batch)))
		preds, err := b.infer(ctx, batch)
		calls++
		if err != nil {
			failed = fmt.Errorf("batch %d: %w", calls, err)
			b.logger.Warn("inference call failed, draining remaining frames",
				zap.Int("remaining", frameCount-i-1),
				zap.Error(err),
			)
		} else {
			result = append(result, preds...)
		}
		batch = batch[:0]
	}

	if failed != nil {
		return nil, calls, failed
	}
	return result, calls, nil
}

func (b *Batcher) infer(ctx context.Context, batch []entity.Tensor) ([]entity.Prediction, error) {
	start := time.Now()
	metrics.InferenceBatchSize.Observe(float64(len(batch)))

	raw, err := b.predictor.Predict(ctx, batch)
	if err != nil {
		metrics.InferenceCallsTotal.WithLabelValues("error").Inc()
		if !errors.Is(err, entity.ErrInference) {
			err = fmt.Errorf("%w: %w", entity.ErrInference, err)
		}
		return nil, err
	}
	preds, err := b.mapPredictions(raw, len(batch))
	if err != nil {
		metrics.InferenceCallsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %w", entity.ErrInference, err)
	}

	metrics.InferenceCallsTotal.WithLabelValues("ok").Inc()
	metrics.JobProcessingDuration.WithLabelValues("inference_call").Observe(time.Since(start).Seconds())
	return preds, nil
}

func (b *Batcher) mapPredictions(raw []port.RawPrediction, want int) ([]entity.Prediction, error) {
	if len(raw) != want {
		return nil, fmt.Errorf("got %d predictions for %d frames", len(raw), want)
	}

	out := make([]entity.Prediction, len(raw))
	for i, p := range raw {
		n := int(p.NumDetections)
		if n < 0 || n > len(p.DetectionClasses) || n > len(p.DetectionScores) {
			return nil, fmt.Errorf("frame %d: num_detections %d exceeds %d classes / %d scores",
				i, n, len(p.DetectionClasses), len(p.DetectionScores))
		}
		pred := make(entity.Prediction, n)
		for j := 0; j < n; j++ {
			label, err := b.labels.Lookup(int(p.DetectionClasses[j]))
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			pred[j] = entity.Detection{Label: label, Score: p.DetectionScores[j]}
		}
		out[i] = pred
	}
	return out, nil
}
