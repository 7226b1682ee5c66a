package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"go.uber.org/zap"
)

// keepLease extends the lease to window every interval until the returned
// stop function is called. stop waits for the renewal goroutine to exit.
func keepLease(
	ctx context.Context,
	queue port.WorkQueue,
	lease *entity.Lease,
	window, interval time.Duration,
	log *zap.Logger,
) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := queue.ExtendVisibility(ctx, lease, window); err != nil {
					metrics.LeaseRenewalsTotal.WithLabelValues("error").Inc()
					log.Warn("lease renewal failed", zap.Error(err))
					continue
				}
				metrics.LeaseRenewalsTotal.WithLabelValues("ok").Inc()
				metrics.Heartbeat()
				log.Debug("lease renewed", zap.Duration("window", window))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
