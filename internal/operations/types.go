package operations

import (
	"time"

	"csvmail/internal/artifacts"
	"csvmail/internal/validation"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the job has finished.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// WebSocket event types
const (
	EventJobQueued   = "validation:queued"
	EventJobStarted  = "validation:started"
	EventJobProgress = "validation:progress"
	EventJobComplete = "validation:complete"
)

// Job is one validation run over an artifact column.
type Job struct {
	ID             string              `json:"id"`
	Filename       artifacts.Token     `json:"filename"`
	ColumnIndex    int                 `json:"columnIndex"`
	Status         JobStatus           `json:"status"`
	Progress       int                 `json:"progress"`
	DomainsChecked int                 `json:"domainsChecked"`
	DomainsTotal   int                 `json:"domainsTotal"`
	Message        string              `json:"message,omitempty"`
	Error          string              `json:"error,omitempty"`
	Summary        *validation.Summary `json:"summary,omitempty"`
	TraceID        string              `json:"traceId,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	StartedAt      *time.Time          `json:"startedAt,omitempty"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
}

// QueueConfig configures a JobQueue.
type QueueConfig struct {
	Workers int
	// QueueSize bounds jobs waiting for a worker. Defaults to 2x workers.
	QueueSize int
	// Budget is the wall-clock limit of one job. Zero means no limit.
	Budget time.Duration
	// Retention is how long finished jobs stay queryable.
	Retention       time.Duration
	CleanupInterval time.Duration
}
