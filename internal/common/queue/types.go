// internal/common/queue/types.go
package queue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeProcessEmail    JobType = "process-email"
	JobTypeDispatchWebhook JobType = "dispatch-webhook"
	JobTypeRecheckPayment  JobType = "recheck-payment"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	RunAt       *time.Time             `json:"run_at,omitempty"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ProcessEmailPayload points at a stored inbound_emails row.
type ProcessEmailPayload struct {
	EmailID   int64  `json:"email_id"`
	MailboxID string `json:"mailbox_id"`
}

func (p ProcessEmailPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"email_id":   p.EmailID,
		"mailbox_id": p.MailboxID,
	}
}

func ProcessEmailPayloadFromMap(data map[string]interface{}) (*ProcessEmailPayload, error) {
	var payload ProcessEmailPayload
	return &payload, fromMap(data, &payload)
}

// DispatchWebhookPayload names the approved request to notify about.
type DispatchWebhookPayload struct {
	PaymentID int64 `json:"payment_id"`
}

func (p DispatchWebhookPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"payment_id": p.PaymentID}
}

func DispatchWebhookPayloadFromMap(data map[string]interface{}) (*DispatchWebhookPayload, error) {
	var payload DispatchWebhookPayload
	return &payload, fromMap(data, &payload)
}

// RecheckPaymentPayload names the pending request to recheck.
type RecheckPaymentPayload struct {
	PaymentID int64 `json:"payment_id"`
}

func (p RecheckPaymentPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"payment_id": p.PaymentID}
}

func RecheckPaymentPayloadFromMap(data map[string]interface{}) (*RecheckPaymentPayload, error) {
	var payload RecheckPaymentPayload
	return &payload, fromMap(data, &payload)
}

func fromMap(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable reports whether the job has retries left.
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
