package domain

import (
	"fmt"
	"time"
)

// IndexJobStatus represents the status of an index rebuild
type IndexJobStatus string

const (
	IndexJobStatusPending    IndexJobStatus = "pending"
	IndexJobStatusProcessing IndexJobStatus = "processing"
	IndexJobStatusCompleted  IndexJobStatus = "completed"
	IndexJobStatusFailed     IndexJobStatus = "failed"
)

// IndexTrigger records what asked for a rebuild.
type IndexTrigger string

const (
	IndexTriggerManual  IndexTrigger = "manual"
	IndexTriggerUpload  IndexTrigger = "upload"
	IndexTriggerWatcher IndexTrigger = "watcher"
	IndexTriggerStartup IndexTrigger = "startup"
)

// IndexJob represents one run of the indexer against the current workbook
type IndexJob struct {
	ID         string
	Trigger    IndexTrigger
	Status     IndexJobStatus
	Error      string
	ManifestID string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewIndexJob creates a pending IndexJob
func NewIndexJob(id string, trigger IndexTrigger, createdAt time.Time) *IndexJob {
	return &IndexJob{
		ID:        id,
		Trigger:   trigger,
		Status:    IndexJobStatusPending,
		CreatedAt: createdAt,
	}
}

// Start marks the job as processing.
func (j *IndexJob) Start(at time.Time) {
	j.Status = IndexJobStatusProcessing
	j.StartedAt = &at
}

// Complete marks the job as completed with the manifest it produced.
func (j *IndexJob) Complete(manifestID string, at time.Time) {
	j.Status = IndexJobStatusCompleted
	j.ManifestID = manifestID
	j.Error = ""
	j.FinishedAt = &at
}

// Fail marks the job as failed.
func (j *IndexJob) Fail(err error, at time.Time) {
	j.Status = IndexJobStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.FinishedAt = &at
}

// Done reports whether the job reached a terminal status.
func (j *IndexJob) Done() bool {
	return j.Status == IndexJobStatusCompleted || j.Status == IndexJobStatusFailed
}

// ValidateIndexJob validates an IndexJob instance
func ValidateIndexJob(j *IndexJob) error {
	if j == nil {
		return fmt.Errorf("index job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("index job ID is required")
	}

	if !isValidIndexJobStatus(j.Status) {
		return fmt.Errorf("index job Status is invalid: %s", j.Status)
	}

	if j.Status == IndexJobStatusCompleted && j.ManifestID == "" {
		return fmt.Errorf("completed index job must reference a manifest")
	}

	return nil
}

// isValidIndexJobStatus checks if an IndexJobStatus is valid
func isValidIndexJobStatus(s IndexJobStatus) bool {
	switch s {
	case IndexJobStatusPending, IndexJobStatusProcessing,
		IndexJobStatusCompleted, IndexJobStatusFailed:
		return true
	}
	return false
}
