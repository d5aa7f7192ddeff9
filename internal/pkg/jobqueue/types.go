package jobqueue

import (
	"time"

	"github.com/google/uuid"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeVerifyPayment JobType = "verify_payment"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`

	// ProviderReference is the payment this job verifies against the gateway.
	ProviderReference string `json:"provider_reference"`
}

// NewVerifyPaymentJob creates a job that polls the provider for the
// authoritative state of a pending payment and reconciles it.
func NewVerifyPaymentJob(providerReference string) *Job {
	now := time.Now()
	return &Job{
		ID:                uuid.NewString(),
		Type:              JobTypeVerifyPayment,
		Status:            JobStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		MaxRetries:        DefaultMaxRetries,
		ProviderReference: providerReference,
	}
}
