package operations

import (
	"context"

	"csvmail/internal/artifacts"
	"csvmail/internal/validation"
)

// Runner validates one column of an artifact.
type Runner interface {
	Run(ctx context.Context, token artifacts.Token, columnIndex int, progress validation.Progress) (validation.Summary, error)
}

// Publisher sends job events to subscribers of a topic.
type Publisher interface {
	Publish(topic, eventType string, data interface{})
}

// JobStore persists jobs. Stores may also implement
// CleanupOldJobs(time.Duration) (int, error) to be pruned by the queue and
// GetStats() map[string]int to report counts by status.
type JobStore interface {
	CreateJob(job *Job) error
	UpdateJob(job *Job) error
	LatestJob(filename artifacts.Token) (*Job, error)
}
