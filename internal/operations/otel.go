package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "csvmail/operations"

// JobMetrics receives job lifecycle telemetry.
type JobMetrics interface {
	RecordJobActive(ctx context.Context, delta int64)
	RecordJobCompletion(ctx context.Context, status, outcome string, duration time.Duration)
}

type noopJobMetrics struct{}

func (noopJobMetrics) RecordJobActive(context.Context, int64) {}
func (noopJobMetrics) RecordJobCompletion(context.Context, string, string, time.Duration) {}

// jobTracer wraps job execution in spans and records job metrics.
type jobTracer struct {
	tracer  trace.Tracer
	metrics JobMetrics
}

func newJobTracer(metrics JobMetrics) *jobTracer {
	if metrics == nil {
		metrics = noopJobMetrics{}
	}
	return &jobTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// start opens the span covering one job execution.
func (t *jobTracer) start(ctx context.Context, job *Job) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "validation.job",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int("job.column_index", job.ColumnIndex),
		),
	)
	t.metrics.RecordJobActive(ctx, 1)
	return ctx, span
}

// finish closes the span and records the terminal state of job.
func (t *jobTracer) finish(ctx context.Context, span trace.Span, job *Job, duration time.Duration) {
	outcome := ""
	if job.Summary != nil {
		outcome = string(job.Summary.Outcome)
		span.SetAttributes(
			attribute.Int("validation.rows", job.Summary.TotalRows),
			attribute.Int("validation.unknown", job.Summary.Unknown),
			attribute.Int("validation.distinct_domains", job.Summary.DistinctDomains),
		)
	}
	span.SetAttributes(
		attribute.String("job.status", string(job.Status)),
		attribute.String("validation.outcome", outcome),
		attribute.Float64("job.duration_seconds", duration.Seconds()),
	)
	if job.Status == JobStatusFailed {
		span.SetStatus(codes.Error, job.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	t.metrics.RecordJobActive(ctx, -1)
	t.metrics.RecordJobCompletion(ctx, string(job.Status), outcome, duration)
}
