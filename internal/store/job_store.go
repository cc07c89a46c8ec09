package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

// ErrJobNotFound is returned when a job is not found in the database
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `
	id, job_type, payload, status, priority, attempts, max_attempts,
	last_error, retry_after, worker_id, dedupe_key, created_at, updated_at`

// JobStore provides database operations for the durable work queue
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new JobStore instance
func NewJobStore(db *sql.DB) (*JobStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &JobStore{db: db}, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job       models.Job
		status    string
		priority  string
		lastError sql.NullString
		retry     sql.NullTime
		workerID  sql.NullString
		dedupeKey sql.NullString
	)
	err := row.Scan(
		&job.ID,
		&job.JobType,
		&job.Payload,
		&status,
		&priority,
		&job.Attempts,
		&job.MaxAttempts,
		&lastError,
		&retry,
		&workerID,
		&dedupeKey,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.Priority = models.JobPriority(priority)
	job.LastError = nullStringPtr(lastError)
	job.RetryAfter = nullTimePtr(retry)
	job.WorkerID = nullStringPtr(workerID)
	job.DedupeKey = dedupeKey.String
	return &job, nil
}

// Enqueue inserts a pending job. When a job with the same type and dedupe key
// is already pending or running, nothing is inserted and enqueued is false.
func (s *JobStore) Enqueue(ctx context.Context, job *models.Job) (bool, error) {
	if err := job.IsValid(); err != nil {
		return false, fmt.Errorf("invalid job: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
INSERT INTO jobs (job_type, payload, status, priority, max_attempts, dedupe_key)
VALUES ($1, $2, 'pending', $3, $4, $5)
ON CONFLICT DO NOTHING
RETURNING id, created_at, updated_at`,
		job.JobType,
		job.Payload,
		string(job.Priority),
		job.MaxAttempts,
		nullString(job.DedupeKey),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}

	job.Status = models.JobStatusPending
	return true, nil
}

// GetByID retrieves a job by its ID
func (s *JobStore) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return job, nil
}

// ClaimNextJob atomically claims the next available job for processing.
// It returns nil, nil when the queue is empty.
func (s *JobStore) ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error) {
	query := `
UPDATE jobs
SET status = 'processing',
    worker_id = $1,
    updated_at = NOW(),
    attempts = attempts + 1
WHERE id = (
	SELECT id FROM jobs
	WHERE status = 'pending'
	  AND (retry_after IS NULL OR retry_after <= NOW())
	ORDER BY
		CASE priority
			WHEN 'high' THEN 3
			WHEN 'normal' THEN 2
			WHEN 'low' THEN 1
		END DESC,
		created_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, workerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// MarkCompleted marks a job as successfully completed
func (s *JobStore) MarkCompleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status = 'completed', updated_at = NOW(), worker_id = NULL
WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

// MarkFailed marks a job as failed with an error message
func (s *JobStore) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status = 'failed', last_error = $2, updated_at = NOW(), worker_id = NULL
WHERE id = $1`, id, errorMsg)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// ScheduleRetry puts a job back to pending until retryAfter
func (s *JobStore) ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status = 'pending', last_error = $2, retry_after = $3, updated_at = NOW(), worker_id = NULL
WHERE id = $1`, id, errorMsg, retryAfter)
	if err != nil {
		return fmt.Errorf("schedule job retry: %w", err)
	}
	return nil
}

// ReleaseJob releases a processing job back to pending (for graceful shutdown)
func (s *JobStore) ReleaseJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status = 'pending', worker_id = NULL, updated_at = NOW()
WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}

// GetStats returns statistics about the job queue
func (s *JobStore) GetStats(ctx context.Context) (*models.JobStats, error) {
	query := `
SELECT
	COUNT(*) FILTER (WHERE status = 'pending'),
	COUNT(*) FILTER (WHERE status = 'processing'),
	COUNT(*) FILTER (WHERE status = 'completed'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'cancelled'),
	COUNT(*)
FROM jobs`

	stats := &models.JobStats{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Completed,
		&stats.Failed,
		&stats.Cancelled,
		&stats.Total,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// CleanupOldJobs removes finished jobs older than the specified duration
func (s *JobStore) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE status IN ('completed', 'failed', 'cancelled')
  AND updated_at < NOW() - INTERVAL '1 second' * $1`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}
