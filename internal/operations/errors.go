package operations

import "errors"

var (
	// ErrValidationInProgress is returned when a token already has an active
	// job for a different column.
	ErrValidationInProgress = errors.New("validation already in progress for this file")

	// ErrQueueFull is returned when no job slot is free.
	ErrQueueFull = errors.New("job queue is full")

	// ErrQueueStopped is returned for submissions after Stop.
	ErrQueueStopped = errors.New("job queue is stopped")

	// ErrJobNotFound is returned when no job exists for a token.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotActive is returned when cancelling a job that already finished.
	ErrJobNotActive = errors.New("job is not active")
)

// Causes recorded on a job's context when it is stopped early.
var (
	errCancelledByUser = errors.New("cancelled by request")
	errBudgetExceeded  = errors.New("validation time budget exceeded")
	errShuttingDown    = errors.New("server shutting down")
)
