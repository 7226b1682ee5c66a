package postgres

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-detection-worker/internal/domain/entity"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Begin inserts the job or, on redelivery, bumps its attempt counter and
// resets it to PROCESSING.
func (r *JobRepository) Begin(ctx context.Context, job *entity.Job) (int, error) {
	query := `
		INSERT INTO detection_jobs (
			id, message_id, bucket, object, status, attempt,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,1,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET message_id = EXCLUDED.message_id,
		    status = EXCLUDED.status,
		    attempt = detection_jobs.attempt + 1,
		    error_message = '',
		    updated_at = EXCLUDED.updated_at
		RETURNING attempt`

	var attempt int
	err := r.pool.QueryRow(ctx, query,
		job.ID, job.MessageID, job.Bucket, job.Object, string(job.Status),
		job.CreatedAt, job.UpdatedAt,
	).Scan(&attempt)
	if err != nil {
		return 0, fmt.Errorf("begin job: %w", err)
	}
	return attempt, nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE detection_jobs SET
			status=$2, frame_count=$3, batch_count=$4,
			error_message=$5, updated_at=$6, completed_at=$7
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.FrameCount, job.BatchCount,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}
