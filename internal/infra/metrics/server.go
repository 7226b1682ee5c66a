package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var lastHeartbeat atomic.Int64

// Heartbeat marks the worker as alive. The poll loop calls it after every
// receive attempt and the lease keeper after every renewal, so a long job
// keeps the worker healthy.
func Heartbeat() {
	lastHeartbeat.Store(time.Now().UnixNano())
}

// LastHeartbeat is the time of the latest Heartbeat, zero before the first.
func LastHeartbeat() time.Time {
	last := lastHeartbeat.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}

// healthHandler answers 503 until the first heartbeat and whenever the last
// one is older than staleAfter.
func healthHandler(staleAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		last := LastHeartbeat()
		if last.IsZero() {
			http.Error(w, "worker not polling yet", http.StatusServiceUnavailable)
			return
		}
		if age := time.Since(last); staleAfter > 0 && age > staleAfter {
			http.Error(w, fmt.Sprintf("last heartbeat %s ago", age.Round(time.Second)), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// StartMetricsServer serves /metrics and /healthz on port until Shutdown.
func StartMetricsServer(port int, staleAfter time.Duration, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.Handle("/healthz", healthHandler(staleAfter))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", zap.Int("port", port), zap.Duration("stale_after", staleAfter))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}
