package port

import (
	"context"
	"time"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
)

// WorkQueue hands out leases on task messages. A lease that is neither
// deleted nor extended becomes redeliverable once its visibility window
// lapses.
type WorkQueue interface {
	// Receive waits up to wait for a message. It returns a nil lease and a
	// nil error when nothing arrived in time.
	Receive(ctx context.Context, wait time.Duration) (*entity.Lease, error)
	ExtendVisibility(ctx context.Context, lease *entity.Lease, d time.Duration) error
	Delete(ctx context.Context, lease *entity.Lease) error
}
