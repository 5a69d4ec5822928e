package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"csvmail/internal/artifacts"
	"csvmail/internal/operations"
	"csvmail/internal/tabular"
)

// JobQueue is the part of operations.JobQueue the validation service uses.
type JobQueue interface {
	Submit(ctx context.Context, token artifacts.Token, columnIndex int) (*operations.Ticket, error)
	Job(token artifacts.Token) (*operations.Job, error)
	Cancel(token artifacts.Token) (*operations.Job, error)
}

// ValidateOutcome is the result of a validate call. Finished is false when
// the caller did not wait or the wait timed out; the job keeps running.
type ValidateOutcome struct {
	Job      operations.Job
	Joined   bool
	Finished bool
}

// ValidationService starts, waits on, inspects and cancels validation jobs.
type ValidationService struct {
	store       artifacts.Store
	queue       JobQueue
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewValidationService creates a validation service. waitTimeout bounds how
// long a synchronous validate call blocks.
func NewValidationService(store artifacts.Store, queue JobQueue, waitTimeout time.Duration, logger *slog.Logger) *ValidationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationService{
		store:       store,
		queue:       queue,
		waitTimeout: waitTimeout,
		logger:      logger.With(slog.String("service", "validation")),
	}
}

// Validate checks that filename names a readable artifact whose header has
// columnIndex, then submits or joins its validation job. With wait set it
// blocks until the job finishes or the wait timeout passes.
func (s *ValidationService) Validate(ctx context.Context, filename string, columnIndex int, wait bool) (*ValidateOutcome, error) {
	token, err := artifacts.ParseToken(filename)
	if err != nil {
		return nil, err
	}
	if err := s.precheck(ctx, token, columnIndex); err != nil {
		return nil, err
	}

	ticket, err := s.queue.Submit(ctx, token, columnIndex)
	if err != nil {
		return nil, err
	}
	outcome := &ValidateOutcome{Job: ticket.Job, Joined: ticket.Joined}
	if !wait {
		return outcome, nil
	}

	waitCtx := ctx
	if s.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.waitTimeout)
		defer cancel()
	}

	job, err := ticket.Wait(waitCtx)
	outcome.Job = job
	select {
	case <-ticket.Done():
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.InfoContext(ctx, "validation still running after wait timeout",
			slog.String("job_id", job.ID),
			slog.Duration("wait_timeout", s.waitTimeout))
		return outcome, nil
	}

	outcome.Finished = true
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// precheck surfaces artifact and column errors before a job is queued.
func (s *ValidationService) precheck(ctx context.Context, token artifacts.Token, columnIndex int) error {
	rc, _, err := s.store.Get(ctx, token)
	if err != nil {
		return err
	}
	defer rc.Close()

	reader, err := tabular.NewReader(rc)
	if err != nil {
		return err
	}
	defer reader.Close()

	header, err := reader.Header()
	if err != nil {
		return err
	}
	_, err = tabular.Resolve(header, columnIndex)
	return err
}

// Status returns the active or most recent job for filename.
func (s *ValidationService) Status(ctx context.Context, filename string) (*operations.Job, error) {
	token, err := artifacts.ParseToken(filename)
	if err != nil {
		return nil, operations.ErrJobNotFound
	}
	job, err := s.queue.Job(token)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel requests cancellation of the active job for filename.
func (s *ValidationService) Cancel(ctx context.Context, filename string) (*operations.Job, error) {
	token, err := artifacts.ParseToken(filename)
	if err != nil {
		return nil, operations.ErrJobNotFound
	}
	job, err := s.queue.Cancel(token)
	if err != nil {
		if !errors.Is(err, operations.ErrJobNotFound) {
			s.logger.WarnContext(ctx, "cancel rejected",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "validation cancel requested",
		slog.String("filename", filename),
		slog.String("job_id", job.ID))
	return job, nil
}
