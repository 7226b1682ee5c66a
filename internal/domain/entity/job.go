package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusProcessing   JobStatus = "PROCESSING"
	JobStatusCompleted    JobStatus = "COMPLETED"
	JobStatusFailed       JobStatus = "FAILED"
	JobStatusDeadLettered JobStatus = "DEAD_LETTERED"
)

// jobNamespace scopes the name-based job IDs so that every delivery of the
// same bucket/object pair maps to one ledger row.
var jobNamespace = uuid.MustParse("6f1d3c8e-2b7a-4c55-9a0e-4a1f0e7d9b21")

// JobID returns the stable identifier of the job addressed by bucket/object.
func JobID(bucket, object string) uuid.UUID {
	return uuid.NewSHA1(jobNamespace, []byte(bucket+"/"+object))
}

type Job struct {
	ID           uuid.UUID
	MessageID    string
	Bucket       string
	Object       string
	Status       JobStatus
	Attempt      int
	FrameCount   int
	BatchCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewJob(msg JobMessage, messageID string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        JobID(msg.Bucket, msg.Object),
		MessageID: messageID,
		Bucket:    msg.Bucket,
		Object:    msg.Object,
		Status:    JobStatusProcessing,
		Attempt:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) MarkCompleted(frameCount, batchCount int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.FrameCount = frameCount
	j.BatchCount = batchCount
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkDeadLettered(reason string) {
	j.Status = JobStatusDeadLettered
	j.ErrorMessage = reason
	j.UpdatedAt = time.Now().UTC()
}
