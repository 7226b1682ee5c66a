package port

import (
	"context"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
)

type JobRepository interface {
	// Begin records a new attempt on the job, creating its row on first
	// sight, and returns the attempt number.
	Begin(ctx context.Context, job *entity.Job) (int, error)
	Update(ctx context.Context, job *entity.Job) error
}
