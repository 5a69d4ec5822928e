package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"csvmail/internal/artifacts"
	"csvmail/internal/infrastructure"
	"csvmail/internal/validation"
)

// activeJob is a job that has been submitted and not yet finished.
type activeJob struct {
	mu          sync.Mutex
	job         Job
	err         error
	done        chan struct{}
	cancel      context.CancelCauseFunc
	cancelCause error
}

func (a *activeJob) snapshot() Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.job
}

// requestCancel stops a running job, or marks a queued one so it is skipped
// when a worker picks it up.
func (a *activeJob) requestCancel(cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel(cause)
		return
	}
	if a.cancelCause == nil {
		a.cancelCause = cause
	}
}

// Ticket is a handle on a submitted or joined job.
type Ticket struct {
	// Job is the state at submission time.
	Job    Job
	Joined bool
	active *activeJob
}

// Done is closed when the job finishes.
func (t *Ticket) Done() <-chan struct{} { return t.active.done }

// Wait blocks until the job finishes or ctx is done. It returns the latest
// job state and the run error, if any. When ctx ends first the job keeps
// running and ctx.Err() is returned.
func (t *Ticket) Wait(ctx context.Context) (Job, error) {
	select {
	case <-t.active.done:
		t.active.mu.Lock()
		defer t.active.mu.Unlock()
		return t.active.job, t.active.err
	case <-ctx.Done():
		return t.active.snapshot(), ctx.Err()
	}
}

// JobQueue manages async validation jobs
type JobQueue struct {
	mu        sync.RWMutex
	jobs      chan *activeJob
	workers   int
	cfg       QueueConfig
	wg        sync.WaitGroup
	runner    Runner
	store     JobStore
	publisher Publisher
	tracer    *jobTracer
	logger    *slog.Logger
	shutdown  chan struct{}
	stopped   bool
	active    map[artifacts.Token]*activeJob
	now       func() time.Time
}

// NewJobQueue creates a new job queue. publisher and metrics may be nil.
func NewJobQueue(runner Runner, store JobStore, publisher Publisher, metrics JobMetrics, cfg QueueConfig, logger *slog.Logger) *JobQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.Retention > 0 && cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:      make(chan *activeJob, cfg.QueueSize),
		workers:   cfg.Workers,
		cfg:       cfg,
		runner:    runner,
		store:     store,
		publisher: publisher,
		tracer:    newJobTracer(metrics),
		logger:    infrastructure.WithComponent(logger, "jobqueue"),
		shutdown:  make(chan struct{}),
		active:    make(map[artifacts.Token]*activeJob),
		now:       time.Now,
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.InfoContext(ctx, "starting job queue",
		slog.Int("workers", q.workers),
		slog.Int("queue_size", cap(q.jobs)),
		slog.Duration("budget", q.cfg.Budget))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	if q.cfg.Retention > 0 {
		q.wg.Add(1)
		go q.cleanup(ctx)
	}
}

// Stop cancels running jobs and waits for the workers to finish. Jobs still
// queued are marked cancelled.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	active := make([]*activeJob, 0, len(q.active))
	for _, a := range q.active {
		active = append(active, a)
	}
	q.mu.Unlock()

	q.logger.Info("stopping job queue", slog.Int("active_jobs", len(active)))
	close(q.shutdown)
	for _, a := range active {
		a.requestCancel(errShuttingDown)
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}

	for {
		select {
		case a := <-q.jobs:
			q.complete(a, nil, func(j *Job) {
				j.Status = JobStatusCancelled
				j.Message = errShuttingDown.Error()
			})
		default:
			q.logger.Info("job queue stopped gracefully")
			return nil
		}
	}
}

// Submit queues a validation of token's column columnIndex. If a job for the
// same token and column is active, the returned ticket joins it instead.
func (q *JobQueue) Submit(ctx context.Context, token artifacts.Token, columnIndex int) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil, ErrQueueStopped
	}

	if a, ok := q.active[token]; ok {
		job := a.snapshot()
		if job.ColumnIndex != columnIndex {
			return nil, fmt.Errorf("%w: column %d is being validated", ErrValidationInProgress, job.ColumnIndex)
		}
		q.logger.InfoContext(ctx, "joining active validation job",
			slog.String("job_id", job.ID),
			slog.Int("column_index", columnIndex))
		return &Ticket{Job: job, Joined: true, active: a}, nil
	}

	// Submit is the only sender and holds q.mu, so a free slot cannot be
	// taken between this check and the send below.
	if len(q.jobs) == cap(q.jobs) {
		q.logger.WarnContext(ctx, "job queue is full", slog.Int("queue_size", cap(q.jobs)))
		return nil, ErrQueueFull
	}

	job := Job{
		ID:          uuid.NewString(),
		Filename:    token,
		ColumnIndex: columnIndex,
		Status:      JobStatusPending,
		Message:     "Job queued",
		TraceID:     infrastructure.GetTraceID(infrastructure.EnsureTraceID(ctx)),
		CreatedAt:   q.now(),
	}
	if err := q.store.CreateJob(&job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	a := &activeJob{job: job, done: make(chan struct{})}
	q.active[token] = a
	q.publish(EventJobQueued, job)
	q.jobs <- a

	q.logger.InfoContext(ctx, "job enqueued",
		slog.String("job_id", job.ID),
		slog.String("filename", string(token)),
		slog.Int("column_index", columnIndex))
	return &Ticket{Job: job, active: a}, nil
}

// Job returns the active job for token, or the most recent finished one.
func (q *JobQueue) Job(token artifacts.Token) (*Job, error) {
	q.mu.RLock()
	a, ok := q.active[token]
	q.mu.RUnlock()
	if ok {
		job := a.snapshot()
		return &job, nil
	}
	return q.store.LatestJob(token)
}

// Cancel requests cancellation of the active job for token. Domain checks
// already in flight finish on their own timeout.
func (q *JobQueue) Cancel(token artifacts.Token) (*Job, error) {
	q.mu.RLock()
	a, ok := q.active[token]
	q.mu.RUnlock()
	if !ok {
		if _, err := q.store.LatestJob(token); err != nil {
			return nil, err
		}
		return nil, ErrJobNotActive
	}

	a.requestCancel(errCancelledByUser)
	job := a.snapshot()
	q.logger.Info("job cancellation requested", slog.String("job_id", job.ID))
	return &job, nil
}

// worker processes jobs from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case a := <-q.jobs:
			q.processJob(ctx, a, logger)
		}
	}
}

// processJob executes a single job
func (q *JobQueue) processJob(ctx context.Context, a *activeJob, logger *slog.Logger) {
	job := a.snapshot()
	if job.TraceID != "" {
		ctx = infrastructure.WithTraceID(ctx, job.TraceID)
	}
	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("filename", string(job.Filename)),
	)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if q.cfg.Budget > 0 {
		var stop context.CancelFunc
		jobCtx, stop = context.WithTimeoutCause(jobCtx, q.cfg.Budget, errBudgetExceeded)
		defer stop()
	}

	a.mu.Lock()
	a.cancel = cancel
	pending := a.cancelCause
	a.mu.Unlock()
	if pending != nil {
		logger.InfoContext(ctx, "job cancelled before start", slog.String("reason", pending.Error()))
		q.complete(a, nil, func(j *Job) {
			j.Status = JobStatusCancelled
			j.Message = pending.Error()
		})
		return
	}

	started := q.now()
	job = q.update(a, func(j *Job) {
		j.Status = JobStatusRunning
		j.StartedAt = &started
		j.Message = "Job started"
	})
	if err := q.store.UpdateJob(&job); err != nil {
		logger.ErrorContext(ctx, "failed to update job status", slog.String("error", err.Error()))
	}
	q.publish(EventJobStarted, job)
	logger.InfoContext(ctx, "processing job started")

	spanCtx, span := q.tracer.start(jobCtx, &job)
	defer func() {
		// Recover from any panics to prevent server crash
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "job processing panicked", slog.Any("panic", r))
			q.complete(a, fmt.Errorf("job processing panicked: %v", r), func(j *Job) {
				j.Status = JobStatusFailed
				j.Error = fmt.Sprintf("job processing panicked: %v", r)
				j.Message = "Internal error occurred"
			})
		}
		final := a.snapshot()
		q.tracer.finish(ctx, span, &final, q.now().Sub(started))
	}()

	summary, err := q.runner.Run(spanCtx, job.Filename, job.ColumnIndex, q.progress(a))
	if err != nil {
		q.handleJobError(a, summary, err, logger)
		return
	}

	final := q.complete(a, nil, func(j *Job) {
		j.Summary = &summary
		if summary.Outcome == validation.OutcomeCancelled {
			j.Status = JobStatusCancelled
			j.Message = "cancelled"
			if cause := context.Cause(jobCtx); cause != nil {
				j.Message = cause.Error()
			}
			return
		}
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.Message = "Validation completed"
	})

	logger.InfoContext(ctx, "processing job completed",
		slog.String("status", string(final.Status)),
		slog.String("outcome", string(summary.Outcome)),
		slog.Int64("duration_ms", summary.DurationMs))
}

// progress returns the callback that tracks domain checks of a.
func (q *JobQueue) progress(a *activeJob) validation.Progress {
	return func(done, total int) {
		a.mu.Lock()
		if done <= a.job.DomainsChecked {
			a.mu.Unlock()
			return
		}
		pct := 0
		if total > 0 {
			pct = done * 100 / total
		}
		changed := pct != a.job.Progress
		a.job.DomainsChecked = done
		a.job.DomainsTotal = total
		a.job.Progress = pct
		job := a.job
		a.mu.Unlock()

		if changed {
			q.publish(EventJobProgress, job)
		}
	}
}

// handleJobError handles job execution errors
func (q *JobQueue) handleJobError(a *activeJob, summary validation.Summary, err error, logger *slog.Logger) {
	logger.Error("job failed", slog.String("error", err.Error()))

	q.complete(a, err, func(j *Job) {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		j.Message = "Job failed"
		j.Summary = &summary
	})
}

func (q *JobQueue) update(a *activeJob, mutate func(*Job)) Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	mutate(&a.job)
	return a.job
}

// complete records the terminal state of a, releases its token and wakes
// every waiter. It is a no-op for a job that already completed.
func (q *JobQueue) complete(a *activeJob, runErr error, mutate func(*Job)) Job {
	a.mu.Lock()
	select {
	case <-a.done:
		job := a.job
		a.mu.Unlock()
		return job
	default:
	}
	mutate(&a.job)
	completedAt := q.now()
	a.job.CompletedAt = &completedAt
	a.err = runErr
	job := a.job
	a.mu.Unlock()

	if err := q.store.UpdateJob(&job); err != nil {
		q.logger.Error("failed to update job completion",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	q.mu.Lock()
	if q.active[job.Filename] == a {
		delete(q.active, job.Filename)
	}
	q.mu.Unlock()

	a.mu.Lock()
	close(a.done)
	a.mu.Unlock()

	q.publish(EventJobComplete, job)
	return job
}

func (q *JobQueue) publish(eventType string, job Job) {
	if q.publisher == nil {
		return
	}
	q.publisher.Publish(string(job.Filename), eventType, job)
}

// cleanup prunes finished jobs past the retention window.
func (q *JobQueue) cleanup(ctx context.Context) {
	defer q.wg.Done()

	cleaner, ok := q.store.(interface {
		CleanupOldJobs(olderThan time.Duration) (int, error)
	})
	if !ok {
		return
	}

	ticker := time.NewTicker(q.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case <-ticker.C:
			n, err := cleaner.CleanupOldJobs(q.cfg.Retention)
			if err != nil {
				q.logger.Warn("job cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				q.logger.Debug("pruned finished jobs", slog.Int("count", n))
			}
		}
	}
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.RLock()
	activeCount := len(q.active)
	stopped := q.stopped
	q.mu.RUnlock()

	stats := map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
		"stopped":     stopped,
	}
	if counted, ok := q.store.(interface{ GetStats() map[string]int }); ok {
		stats["jobs"] = counted.GetStats()
	}
	return stats
}

// IsRunning reports whether the queue accepts submissions.
func (q *JobQueue) IsRunning() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return !q.stopped
}

// IsQueueError reports whether err means the queue could not take a job.
func IsQueueError(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueStopped)
}
