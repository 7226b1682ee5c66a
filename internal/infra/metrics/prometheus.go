package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_jobs_processed_total",
		Help: "Total number of jobs processed, by outcome",
	}, []string{"outcome"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "detection_job_processing_duration_seconds",
		Help:    "Duration of job processing stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detection_frames_extracted_total",
		Help: "Total number of frames extracted across all jobs",
	})

	InferenceCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_inference_calls_total",
		Help: "Total number of inference calls, by result",
	}, []string{"result"})

	InferenceBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "detection_inference_batch_size",
		Help:    "Number of frames sent per inference call",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	BatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "detection_batch_queue_depth",
		Help: "Frames waiting in the batching channel",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "detection_active_jobs",
		Help: "Number of jobs currently being processed",
	})

	LeaseRenewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_lease_renewals_total",
		Help: "Total number of lease visibility extensions, by result",
	}, []string{"result"})

	ProtectionChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_protection_changes_total",
		Help: "Termination protection changes, by action and result",
	}, []string{"action", "result"})
)
