package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"github.com/fiapx/fiapx-detection-worker/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// FramePipeline turns a local video file into per-frame predictions.
type FramePipeline interface {
	Run(ctx context.Context, videoPath string) (*pipeline.Outcome, error)
}

type ProcessJobUseCase struct {
	queue      port.WorkQueue
	storage    port.ObjectStore
	pipeline   FramePipeline
	completion port.CompletionPublisher
	dlq        port.DLQPublisher
	control    port.InstanceControl
	repo       port.JobRepository
	notifier   port.FailureNotifier
	logger     *zap.Logger
	cfg        ProcessJobConfig
}

type ProcessJobConfig struct {
	InstanceID        string
	StagingFile       string
	VisibilityTimeout time.Duration
	// RenewInterval > 0 keeps the lease alive while the pipeline runs.
	RenewInterval time.Duration
	// MaxDeliveries > 0 dead-letters a message delivered more often.
	MaxDeliveries int
	ResultFormat  entity.ResultFormat
}

// NewProcessJobUseCase wires the job processor. repo and notifier may be nil.
func NewProcessJobUseCase(
	queue port.WorkQueue,
	storage port.ObjectStore,
	pl FramePipeline,
	completion port.CompletionPublisher,
	dlq port.DLQPublisher,
	control port.InstanceControl,
	repo port.JobRepository,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessJobConfig,
) *ProcessJobUseCase {
	if cfg.ResultFormat == "" {
		cfg.ResultFormat = entity.ResultFormatText
	}
	return &ProcessJobUseCase{
		queue:      queue,
		storage:    storage,
		pipeline:   pl,
		completion: completion,
		dlq:        dlq,
		control:    control,
		repo:       repo,
		notifier:   notifier,
		logger:     logger.With(zap.String("instance_id", cfg.InstanceID)),
		cfg:        cfg,
	}
}

// Execute processes one leased message and reports the state it ended in:
// StateAcknowledged when the message was consumed, StateLeaseAbandoned when
// it was left on the queue for redelivery. The returned error is the cause
// of an abandonment.
func (uc *ProcessJobUseCase) Execute(ctx context.Context, lease *entity.Lease) (entity.JobState, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessJobUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	log := uc.logger.With(
		zap.String("lease_id", lease.ID),
		zap.String("message_id", lease.MessageID),
		zap.Int("delivery_count", lease.DeliveryCount),
	)
	log.Info("message received", zap.Stringer("state", entity.StateLeaseAcquired))

	if err := uc.queue.ExtendVisibility(ctx, lease, uc.cfg.VisibilityTimeout); err != nil {
		return uc.abandon(ctx, nil, fmt.Errorf("extend visibility: %w", err), log)
	}
	log.Info("message visibility updated", zap.Duration("visibility", uc.cfg.VisibilityTimeout))

	msg, err := entity.ParseJobMessage(lease.Body)
	if err != nil {
		log.Error("failed to parse message", zap.Error(err), zap.ByteString("body", lease.Body))
		return uc.deadLetter(ctx, lease, nil, err.Error(), log)
	}

	job := entity.NewJob(msg, lease.MessageID)
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.bucket", msg.Bucket),
		attribute.String("job.object", msg.Object),
	)
	log = log.With(zap.String("job_id", job.ID.String()), zap.String("object", msg.Bucket+"/"+msg.Object))
	log.Info("message body is loaded")
	uc.begin(ctx, job, log)

	// Classic queues only flag a redelivery, so the ledger's attempt counter
	// is the real count whenever it is higher.
	deliveries := max(lease.DeliveryCount, job.Attempt)
	if uc.cfg.MaxDeliveries > 0 && deliveries > uc.cfg.MaxDeliveries {
		reason := fmt.Sprintf("delivered %d times, limit %d", deliveries, uc.cfg.MaxDeliveries)
		log.Warn("job exceeded delivery limit, sending to DLQ", zap.Int("deliveries", deliveries))
		return uc.deadLetter(ctx, lease, job, reason, log)
	}

	guard := EngageProtection(ctx, uc.control, uc.cfg.InstanceID, log)
	if guard.Engaged() {
		log.Info("job state", zap.Stringer("state", entity.StateProtectionEngaged))
	} else {
		log.Warn("continuing without termination protection")
	}

	// Runs on every exit path; on success it has already run in order.
	finish := func() {
		_ = guard.Release(context.WithoutCancel(ctx))
		uc.removeStagingFile(log)
	}
	defer finish()

	body, frameCount, batchCount, err := uc.run(ctx, lease, msg, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return uc.abandon(ctx, job, err, log)
	}

	if err := uc.completion.PublishCompletion(ctx, body, contentType(uc.cfg.ResultFormat)); err != nil {
		return uc.abandon(ctx, job, fmt.Errorf("publish completion: %w", err), log)
	}
	log.Info("task completed msg sent", zap.Int("bytes", len(body)))

	if err := uc.queue.Delete(ctx, lease); err != nil {
		// The result is out; the message will come back once the lease
		// lapses and be processed again.
		return uc.abandon(ctx, job, fmt.Errorf("delete message: %w", err), log)
	}
	log.Info("message deleted")

	finish()

	job.MarkCompleted(frameCount, batchCount)
	uc.update(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	log.Info("job completed",
		zap.Stringer("state", entity.StateAcknowledged),
		zap.Int("frame_count", frameCount),
		zap.Int("batch_count", batchCount),
	)
	return entity.StateAcknowledged, nil
}

// run downloads the payload and drives the frame pipeline, returning the
// rendered completion body.
func (uc *ProcessJobUseCase) run(
	ctx context.Context,
	lease *entity.Lease,
	msg entity.JobMessage,
	log *zap.Logger,
) ([]byte, int, int, error) {
	tracer := otel.Tracer("usecase")

	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	err := uc.storage.Download(ctx2, msg.Bucket, msg.Object, uc.cfg.StagingFile)
	spanDl.End()
	if err != nil {
		if !errors.Is(err, entity.ErrDownload) {
			err = fmt.Errorf("%w: %w", entity.ErrDownload, err)
		}
		return nil, 0, 0, err
	}
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())
	log.Info("file is downloaded", zap.Stringer("state", entity.StateDownloaded))

	if uc.cfg.RenewInterval > 0 {
		stop := keepLease(ctx, uc.queue, lease, uc.cfg.VisibilityTimeout, uc.cfg.RenewInterval, log)
		defer stop()
	}

	log.Info("starting predictions", zap.Stringer("state", entity.StatePipelineRunning))
	outcome, err := uc.pipeline.Run(ctx, uc.cfg.StagingFile)
	if err != nil {
		return nil, 0, 0, err
	}
	log.Info("predictions completed",
		zap.Stringer("state", entity.StateCompleted),
		zap.Int("frame_count", outcome.FrameCount),
		zap.Int("batch_count", outcome.BatchCount),
	)

	body, err := outcome.Result.Render(uc.cfg.ResultFormat)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("render result: %w", err)
	}
	log.Debug("completion result", zap.ByteString("body", body))
	return body, outcome.FrameCount, outcome.BatchCount, nil
}

// abandon leaves the message on the queue. It becomes visible again once
// the lease window lapses.
func (uc *ProcessJobUseCase) abandon(ctx context.Context, job *entity.Job, cause error, log *zap.Logger) (entity.JobState, error) {
	log.Error("problem processing message",
		zap.Stringer("state", entity.StateLeaseAbandoned),
		zap.String("kind", failureKind(cause)),
		zap.Error(cause),
	)
	if job != nil {
		job.MarkFailed(cause.Error())
		uc.update(ctx, job, log)
	}
	metrics.JobsProcessedTotal.WithLabelValues("abandoned").Inc()
	return entity.StateLeaseAbandoned, cause
}

// deadLetter parks the raw message on the DLQ and consumes it from the work
// queue. If the DLQ publish fails the lease is abandoned instead, so the
// message is never lost.
func (uc *ProcessJobUseCase) deadLetter(
	ctx context.Context,
	lease *entity.Lease,
	job *entity.Job,
	reason string,
	log *zap.Logger,
) (entity.JobState, error) {
	if err := uc.dlq.PublishToDLQ(ctx, lease.Body, reason); err != nil {
		return uc.abandon(ctx, job, fmt.Errorf("publish to dlq: %w", err), log)
	}
	if err := uc.queue.Delete(ctx, lease); err != nil {
		return uc.abandon(ctx, job, fmt.Errorf("delete dead-lettered message: %w", err), log)
	}

	jobID := lease.MessageID
	source := ""
	if job != nil {
		jobID = job.ID.String()
		source = job.Bucket + "/" + job.Object
		job.MarkDeadLettered(reason)
		uc.update(ctx, job, log)
	}
	if uc.notifier != nil {
		_ = uc.notifier.NotifyFailure(ctx, jobID, source, reason)
	}

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
	log.Warn("message dead-lettered", zap.Stringer("state", entity.StateAcknowledged), zap.String("reason", reason))
	return entity.StateAcknowledged, nil
}

func (uc *ProcessJobUseCase) begin(ctx context.Context, job *entity.Job, log *zap.Logger) {
	if uc.repo == nil {
		return
	}
	attempt, err := uc.repo.Begin(ctx, job)
	if err != nil {
		log.Warn("failed to record job attempt", zap.Error(err))
		return
	}
	job.Attempt = attempt
}

func (uc *ProcessJobUseCase) update(ctx context.Context, job *entity.Job, log *zap.Logger) {
	if uc.repo == nil {
		return
	}
	if err := uc.repo.Update(context.WithoutCancel(ctx), job); err != nil {
		log.Warn("failed to update job record", zap.String("status", string(job.Status)), zap.Error(err))
	}
}

func (uc *ProcessJobUseCase) removeStagingFile(log *zap.Logger) {
	if err := os.Remove(uc.cfg.StagingFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove staging file", zap.String("path", uc.cfg.StagingFile), zap.Error(err))
	}
}

func contentType(f entity.ResultFormat) string {
	if f == entity.ResultFormatJSON {
		return "application/json"
	}
	return "text/plain"
}

func failureKind(err error) string {
	for _, k := range []error{
		entity.ErrLease,
		entity.ErrDownload,
		entity.ErrDecode,
		entity.ErrInference,
		entity.ErrPublish,
		entity.ErrProtection,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "unknown"
}
