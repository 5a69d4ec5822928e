package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvmail/internal/artifacts"
	"csvmail/internal/operations"
	"csvmail/internal/shared/testutil"
	"csvmail/internal/stats"
	"csvmail/internal/tabular"
	"csvmail/internal/transform"
	"csvmail/internal/validation"
)

// gatedChecker reports every domain valid once gate is closed.
type gatedChecker struct {
	gate chan struct{}
	once sync.Once
}

func newGatedChecker(open bool) *gatedChecker {
	c := &gatedChecker{gate: make(chan struct{})}
	if open {
		c.open()
	}
	return c
}

func (c *gatedChecker) open() { c.once.Do(func() { close(c.gate) }) }

func (c *gatedChecker) Check(ctx context.Context, domain string) validation.DomainVerdict {
	select {
	case <-c.gate:
		return validation.DomainVerdict{Classification: validation.Valid, Attempts: 1}
	case <-ctx.Done():
		return validation.DomainVerdict{Classification: validation.Unknown, Attempts: 1, Reason: "cancelled"}
	}
}

type validationFixture struct {
	svc     *ValidationService
	queue   *operations.JobQueue
	store   *artifacts.FileStore
	checker *gatedChecker
	logs    *testutil.BufferedSlogHandler
	token   artifacts.Token
}

func newValidationFixture(t *testing.T, checkerOpen bool, wait time.Duration) *validationFixture {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	store := newTestStore(t)
	checker := newGatedChecker(checkerOpen)

	pipeline := validation.NewPipeline(store, checker, validation.PipelineConfig{Workers: 2}, nil, nil)
	queue := operations.NewJobQueue(pipeline, operations.NewMemoryJobStore(), nil, nil, operations.QueueConfig{Workers: 1, QueueSize: 2}, logger)
	queue.Start(context.Background())
	t.Cleanup(func() { _ = queue.Stop(5 * time.Second) })
	// Runs before Stop so blocked checks can return.
	t.Cleanup(checker.open)

	csvSvc := NewCSVService(store, stats.DedupExact, nil, nil)
	result, err := csvSvc.Process(context.Background(), upload(testutil.ContactsCSV(t)), 1, transform.KeepEmptyRows)
	require.NoError(t, err)

	return &validationFixture{
		svc:     NewValidationService(store, queue, wait, nil),
		queue:   queue,
		store:   store,
		checker: checker,
		logs:    logs,
		token:   result.Artifact.Token,
	}
}

func TestValidationService_ValidateAndWait(t *testing.T) {
	f := newValidationFixture(t, true, 5*time.Second)

	outcome, err := f.svc.Validate(context.Background(), string(f.token), 1, true)
	require.NoError(t, err)
	require.True(t, outcome.Finished)
	assert.Equal(t, operations.JobStatusCompleted, outcome.Job.Status)

	summary := outcome.Job.Summary
	require.NotNil(t, summary)
	assert.Equal(t, validation.OutcomeCompleteSuccess, summary.Outcome)
	assert.Equal(t, 5, summary.TotalRows)
	assert.Equal(t, 3, summary.Valid)
	assert.Equal(t, 1, summary.InvalidSyntax)
	assert.Equal(t, 1, summary.EmptyEmails)
	assert.NotEmpty(t, summary.ReportFilename)
	assert.NotEqual(t, f.token, summary.ReportFilename)

	// The input artifact is left as it was.
	info, err := f.store.Stat(context.Background(), f.token)
	require.NoError(t, err)
	assert.Equal(t, artifacts.KindProcessed, info.Meta.Kind)
}

func TestValidationService_SequentialRunsAgree(t *testing.T) {
	f := newValidationFixture(t, true, 5*time.Second)

	first, err := f.svc.Validate(context.Background(), string(f.token), 1, true)
	require.NoError(t, err)
	second, err := f.svc.Validate(context.Background(), string(f.token), 1, true)
	require.NoError(t, err)

	assert.NotEqual(t, first.Job.ID, second.Job.ID)
	assert.Equal(t, first.Job.Summary.Counts(), second.Job.Summary.Counts())
	assert.Equal(t, first.Job.Summary.EmptyEmails, second.Job.Summary.EmptyEmails)
}

func TestValidationService_NoWait(t *testing.T) {
	f := newValidationFixture(t, false, 5*time.Second)

	outcome, err := f.svc.Validate(context.Background(), string(f.token), 1, false)
	require.NoError(t, err)
	assert.False(t, outcome.Finished)
	assert.False(t, outcome.Joined)

	// Same column joins, another column conflicts.
	joined, err := f.svc.Validate(context.Background(), string(f.token), 1, false)
	require.NoError(t, err)
	assert.True(t, joined.Joined)
	assert.Equal(t, outcome.Job.ID, joined.Job.ID)

	_, err = f.svc.Validate(context.Background(), string(f.token), 0, false)
	assert.ErrorIs(t, err, operations.ErrValidationInProgress)

	f.checker.open()
	require.Eventually(t, func() bool {
		job, err := f.svc.Status(context.Background(), string(f.token))
		return err == nil && job.Status == operations.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestValidationService_WaitTimeoutLeavesJobRunning(t *testing.T) {
	f := newValidationFixture(t, false, 20*time.Millisecond)

	outcome, err := f.svc.Validate(context.Background(), string(f.token), 1, true)
	require.NoError(t, err)
	assert.False(t, outcome.Finished)

	job, err := f.svc.Status(context.Background(), string(f.token))
	require.NoError(t, err)
	assert.False(t, job.Status.IsTerminal())
}

func TestValidationService_ConcurrentCallsShareSummary(t *testing.T) {
	f := newValidationFixture(t, false, 5*time.Second)

	var wg sync.WaitGroup
	outcomes := make([]*ValidateOutcome, 2)
	errs := make([]error, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.svc.Validate(context.Background(), string(f.token), 1, true)
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.logs.ContainsMessage("joining active validation job")
	}, 5*time.Second, 5*time.Millisecond)
	f.checker.open()
	wg.Wait()

	for i := range outcomes {
		require.NoError(t, errs[i])
		require.True(t, outcomes[i].Finished)
	}
	assert.Equal(t, outcomes[0].Job.ID, outcomes[1].Job.ID)
	assert.Equal(t, outcomes[0].Job.Summary, outcomes[1].Job.Summary)
}

func TestValidationService_Errors(t *testing.T) {
	f := newValidationFixture(t, true, 5*time.Second)
	ctx := context.Background()

	_, err := f.svc.Validate(ctx, "not-a-token", 1, true)
	assert.ErrorIs(t, err, artifacts.ErrArtifactNotFound)

	unknown, err := artifacts.NewToken()
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, string(unknown), 1, true)
	assert.ErrorIs(t, err, artifacts.ErrArtifactNotFound)

	_, err = f.svc.Validate(ctx, string(f.token), 3, true)
	var rangeErr *tabular.ColumnOutOfRangeError
	assert.ErrorAs(t, err, &rangeErr)

	_, err = f.svc.Status(ctx, string(f.token))
	assert.ErrorIs(t, err, operations.ErrJobNotFound)

	_, err = f.svc.Cancel(ctx, strings.Repeat("x", 10))
	assert.ErrorIs(t, err, operations.ErrJobNotFound)
}

func TestValidationService_Cancel(t *testing.T) {
	f := newValidationFixture(t, false, 5*time.Second)
	ctx := context.Background()

	// The single worker is busy with the first file, so the second stays queued.
	_, err := f.svc.Validate(ctx, string(f.token), 1, false)
	require.NoError(t, err)

	csvSvc := NewCSVService(f.store, stats.DedupExact, nil, nil)
	second, err := csvSvc.Process(ctx, upload(testutil.ContactsCSV(t)), 1, transform.DropEmptyRows)
	require.NoError(t, err)
	queued := string(second.Artifact.Token)

	_, err = f.svc.Validate(ctx, queued, 1, false)
	require.NoError(t, err)

	job, err := f.svc.Cancel(ctx, queued)
	require.NoError(t, err)
	assert.Equal(t, second.Artifact.Token, job.Filename)

	f.checker.open()
	require.Eventually(t, func() bool {
		job, err := f.svc.Status(ctx, queued)
		return err == nil && job.Status == operations.JobStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.svc.Cancel(ctx, queued)
	assert.ErrorIs(t, err, operations.ErrJobNotActive)
}
