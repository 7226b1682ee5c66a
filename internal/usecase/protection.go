package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
	"github.com/fiapx/fiapx-detection-worker/internal/infra/metrics"
	"go.uber.org/zap"
)

// ProtectionGuard holds termination protection for the duration of one job.
// Release is safe to call more than once; only the first call acts.
type ProtectionGuard struct {
	control    port.InstanceControl
	instanceID string
	logger     *zap.Logger
	engaged    bool
	once       sync.Once
	err        error
}

// EngageProtection turns termination protection on. A control failure is
// logged and leaves the protection state uncertain, but the job goes on and
// the returned guard still tries to turn protection off on release.
func EngageProtection(ctx context.Context, control port.InstanceControl, instanceID string, logger *zap.Logger) *ProtectionGuard {
	g := &ProtectionGuard{control: control, instanceID: instanceID, logger: logger}
	if err := control.SetTerminationProtection(ctx, instanceID, true); err != nil {
		metrics.ProtectionChangesTotal.WithLabelValues("engage", "error").Inc()
		logger.Error("failed to engage termination protection",
			zap.Error(fmt.Errorf("%w: %w", entity.ErrProtection, err)),
		)
		return g
	}
	metrics.ProtectionChangesTotal.WithLabelValues("engage", "ok").Inc()
	logger.Info("termination protection engaged")
	g.engaged = true
	return g
}

// Engaged reports whether protection was confirmed on.
func (g *ProtectionGuard) Engaged() bool {
	return g.engaged
}

func (g *ProtectionGuard) Release(ctx context.Context) error {
	g.once.Do(func() {
		if err := g.control.SetTerminationProtection(ctx, g.instanceID, false); err != nil {
			metrics.ProtectionChangesTotal.WithLabelValues("disengage", "error").Inc()
			g.err = fmt.Errorf("%w: %w", entity.ErrProtection, err)
			g.logger.Error("failed to disengage termination protection", zap.Error(g.err))
			return
		}
		metrics.ProtectionChangesTotal.WithLabelValues("disengage", "ok").Inc()
		g.logger.Info("termination protection disengaged")
	})
	return g.err
}
