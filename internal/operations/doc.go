// Package operations runs email validation jobs in the background.
//
// A JobQueue owns a fixed pool of workers fed from a bounded channel. Each
// job validates one column of one stored artifact through a Runner. At most
// one job is active per artifact token: a second submission for the same
// column joins the active job, a submission for a different column fails
// with ErrValidationInProgress.
//
// Jobs are kept in a JobStore after they finish so their summaries can be
// fetched, and are pruned once older than the configured retention.
//
// Example usage:
//
//	queue := operations.NewJobQueue(pipeline, operations.NewMemoryJobStore(), hub, nil, operations.QueueConfig{
//		Workers: 2,
//		Budget:  10 * time.Minute,
//	}, logger)
//	queue.Start(ctx)
//	defer queue.Stop(30 * time.Second)
//
//	job, done, err := queue.Submit(ctx, token, 2)
//	if err != nil {
//		return err
//	}
//	<-done
//	job, _ = queue.Job(job.Filename)
package operations
