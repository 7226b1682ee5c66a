package pipeline

import (
	"context"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Outcome is what one pipeline run produced.
type Outcome struct {
	Result     entity.CompletionResult
	FrameCount int
	BatchCount int
}

// Pipeline runs extraction, staging and batched inference for one video.
// It shares the stager's channels across runs, so runs must not overlap.
type Pipeline struct {
	extractor *Extractor
	stager    *Stager
	batcher   *Batcher
	logger    *zap.Logger
}

func New(extractor *Extractor, stager *Stager, batcher *Batcher, logger *zap.Logger) *Pipeline {
	return &Pipeline{extractor: extractor, stager: stager, batcher: batcher, logger: logger}
}

func (p *Pipeline) Run(ctx context.Context, videoPath string) (*Outcome, error) {
	tracer := otel.Tracer("pipeline")

	exStart := time.Now()
	ctx2, spanEx := tracer.Start(ctx, "extract_frames")
	frames, err := p.extractor.Extract(ctx2, videoPath)
	spanEx.End()
	if err != nil {
		return nil, err
	}
	metrics.JobProcessingDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	metrics.FramesExtractedTotal.Add(float64(len(frames)))
	p.logger.Info("frames extracted", zap.Int("frame_count", len(frames)))

	p.stager.Feed(frames)

	infStart := time.Now()
	ctx3, spanInf := tracer.Start(ctx, "batch_inference")
	spanInf.SetAttributes(attribute.Int("frame_count", len(frames)))
	result, calls, err := p.batcher.Run(ctx3, len(frames))
	spanInf.SetAttributes(attribute.Int("inference_calls", calls))
	spanInf.End()
	if err != nil {
		return nil, err
	}
	metrics.JobProcessingDuration.WithLabelValues("inference").Observe(time.Since(infStart).Seconds())

	return &Outcome{Result: result, FrameCount: len(frames), BatchCount: calls}, nil
}
