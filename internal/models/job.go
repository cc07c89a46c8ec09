package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobTypeReconcileSubscription compares one subscription with the provider
// and repairs local drift.
const JobTypeReconcileSubscription = "reconcile_subscription"

// JobStatus represents the current state of a job in the queue
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// JobPriority represents the priority level for job processing
type JobPriority string

const (
	JobPriorityLow    JobPriority = "low"
	JobPriorityNormal JobPriority = "normal"
	JobPriorityHigh   JobPriority = "high"
)

// Job is a row of the durable work queue.
type Job struct {
	ID          int64       `json:"id"`
	JobType     string      `json:"job_type"`
	Payload     JSONB       `json:"payload"`
	Status      JobStatus   `json:"status"`
	Priority    JobPriority `json:"priority"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"max_attempts"`
	LastError   *string     `json:"last_error,omitempty"`
	RetryAfter  *time.Time  `json:"retry_after,omitempty"`
	WorkerID    *string     `json:"worker_id,omitempty"`
	DedupeKey   string      `json:"dedupe_key,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewReconcileJob builds a drift repair job for one provider subscription.
// The reason is kept for operators reading the queue.
func NewReconcileJob(externalSubscriptionID, reason string, priority JobPriority) *Job {
	return &Job{
		JobType: JobTypeReconcileSubscription,
		Payload: JSONB{
			"external_subscription_id": externalSubscriptionID,
			"reason":                   reason,
		},
		Priority:    priority,
		MaxAttempts: 5,
		DedupeKey:   externalSubscriptionID,
	}
}

// ExternalSubscriptionID extracts the target of a reconcile job.
func (j *Job) ExternalSubscriptionID() (string, error) {
	id, _ := j.Payload["external_subscription_id"].(string)
	if id == "" {
		return "", fmt.Errorf("job %d: missing external_subscription_id in payload", j.ID)
	}
	return id, nil
}

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// JobStats holds statistics about the job queue
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// IsValid checks if the job is in a valid state for processing
func (j *Job) IsValid() error {
	if j.JobType == "" {
		return fmt.Errorf("job type is required")
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if j.Priority == "" {
		j.Priority = JobPriorityNormal
	}
	return nil
}
