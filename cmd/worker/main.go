package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/config"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/ec2"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/email"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-detection-worker/internal/infra/minio"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/postgres"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/tfserving"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/tracing"
	"github.com/fiapx/fiapx-detection-worker/internal/pipeline"
	"github.com/fiapx/fiapx-detection-worker/internal/usecase"
	"github.com/fiapx/fiapx-detection-worker/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, cfgErr := config.Load()

	level := "info"
	if cfg != nil {
		level = cfg.LogLevel
	}
	log, err := logger.New(level)
	if err != nil {
		log, _ = logger.New("info")
		log.Error("invalid log level, using info", zap.Error(err))
	}
	defer log.Sync()

	if cfgErr != nil {
		log.Error("Please set the environment variables for TASK_QUEUE and TASK_COMPLETED_QUEUE", zap.Error(cfgErr))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Instance identity, once at startup
	identity, err := ec2.NewMetadataClient(cfg.MetadataURL).Identity(ctx)
	if err != nil {
		log.Error("failed to read instance identity", zap.Error(err))
		return 1
	}
	log = log.With(zap.String("instance_id", identity.InstanceID))

	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, tracing.Config{
			Endpoint:    cfg.OTLPEndpoint,
			InstanceID:  identity.InstanceID,
			Region:      identity.Region,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	var control port.InstanceControl = ec2.NoopController{}
	if cfg.ProtectionEnabled {
		pc, err := ec2.NewProtectionController(ctx, identity.Region)
		if err != nil {
			log.Error("failed to create ec2 client", zap.Error(err))
			return 1
		}
		control = pc
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    identity.Region,
		UseSSL:    cfg.S3UseSSL,
		UseIAM:    cfg.S3AccessKey == "",
	})
	if err != nil {
		log.Error("failed to create object store client", zap.Error(err))
		return 1
	}

	queue, err := rabbitmq.NewWorkQueue(rabbitmq.WorkQueueConfig{
		URL:               cfg.RabbitMQURL,
		Queue:             cfg.TaskQueue,
		CompletionQueue:   cfg.TaskCompletedQueue,
		DLQ:               cfg.RabbitMQDLQ,
		QueueType:         cfg.QueueType,
		DefaultVisibility: cfg.DefaultVisibility,
		PollInterval:      cfg.PollInterval,
	}, log)
	if err != nil {
		log.Error("failed to open task queue", zap.Error(err))
		return 1
	}
	defer queue.Close()

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Error("failed to connect to rabbitmq for publisher", zap.Error(err))
		return 1
	}
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn)
	if err != nil {
		log.Error("failed to create publisher", zap.Error(err))
		return 1
	}
	completionPub := rabbitmq.NewCompletionPublisher(pub, cfg.TaskCompletedQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Job ledger is optional
	var repo port.JobRepository
	if cfg.DatabaseURL != "" {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			log.Warn("migration warning", zap.Error(err))
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", zap.Error(err))
			return 1
		}
		defer pool.Close()
		repo = postgres.NewJobRepository(pool)
	}

	var notifier port.FailureNotifier
	if len(cfg.NotificationTo) > 0 {
		notifier = email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.NotificationTo, log)
	}

	// Frame pipeline; the stager lives as long as the process
	stager := pipeline.NewStager(cfg.FrameMax, cfg.FrameBatch, log)
	stagerCtx, stopStager := context.WithCancel(context.Background())
	defer stopStager()
	go stager.Run(stagerCtx)

	decoder := ffmpeg.NewDecoder(cfg.FFmpegPath, cfg.FFprobePath, log)
	predictor := tfserving.NewClient(cfg.InferenceEndpoint, cfg.InferenceTimeout)
	pl := pipeline.New(
		pipeline.NewExtractor(decoder, cfg.FrameMax, log),
		stager,
		pipeline.NewBatcher(stager.Batching(), predictor, pipeline.COCOLabels, cfg.FrameBatch, log),
		log,
	)

	renew := time.Duration(0)
	if cfg.LeaseRenew {
		renew = cfg.RenewInterval()
	}
	uc := usecase.NewProcessJobUseCase(
		queue, storage, pl, completionPub, dlqPub, control, repo, notifier,
		log,
		usecase.ProcessJobConfig{
			InstanceID:        identity.InstanceID,
			StagingFile:       cfg.StagingFile,
			VisibilityTimeout: cfg.VisibilityTimeout,
			RenewInterval:     renew,
			MaxDeliveries:     cfg.MaxDeliveries,
			ResultFormat:      entity.ResultFormat(cfg.CompletionFormat),
		},
	)

	// A running job heartbeats on lease renewal, at least once per window.
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, cfg.VisibilityTimeout+2*cfg.PollWait, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("Initialized",
		zap.String("region", identity.Region),
		zap.Int("frame_batch", cfg.FrameBatch),
		zap.Int("frame_max", cfg.FrameMax),
	)

	worker := usecase.NewWorker(queue, uc, cfg.PollWait, cfg.PollBackoff, log)
	if err := worker.Run(ctx); err != nil {
		log.Error("worker error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("detection worker stopped")
	return 0
}
