package infrastructure

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"csvmail/internal/validation"
)

// BusinessMetrics holds all application-specific metrics
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// CSV metrics
	RowsScanned      metric.Int64Counter
	ArtifactsCreated metric.Int64Counter

	// Validation metrics
	ValidationJobsTotal    metric.Int64Counter
	ValidationJobDuration  metric.Float64Histogram
	ValidationActiveJobs   metric.Int64UpDownCounter
	AddressClassifications metric.Int64Counter
	DNSLookupDuration      metric.Float64Histogram
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	rowsScanned, err := meter.Int64Counter(
		"csv_rows_scanned_total",
		metric.WithDescription("Total number of data rows read from uploads"),
	)
	if err != nil {
		return nil, err
	}

	artifactsCreated, err := meter.Int64Counter(
		"csv_artifacts_created_total",
		metric.WithDescription("Total number of stored artifacts"),
	)
	if err != nil {
		return nil, err
	}

	jobsTotal, err := meter.Int64Counter(
		"validation_jobs_total",
		metric.WithDescription("Total number of finished validation jobs"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"validation_job_duration_seconds",
		metric.WithDescription("Validation job duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeJobs, err := meter.Int64UpDownCounter(
		"validation_active_jobs",
		metric.WithDescription("Number of running validation jobs"),
	)
	if err != nil {
		return nil, err
	}

	classifications, err := meter.Int64Counter(
		"validation_addresses_total",
		metric.WithDescription("Total number of classified address rows"),
	)
	if err != nil {
		return nil, err
	}

	dnsLookupDuration, err := meter.Float64Histogram(
		"validation_dns_lookup_duration_seconds",
		metric.WithDescription("Domain check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &BusinessMetrics{
		HTTPRequestsTotal:      httpRequestsTotal,
		HTTPRequestDuration:    httpRequestDuration,
		HTTPActiveRequests:     httpActiveRequests,
		RowsScanned:            rowsScanned,
		ArtifactsCreated:       artifactsCreated,
		ValidationJobsTotal:    jobsTotal,
		ValidationJobDuration:  jobDuration,
		ValidationActiveJobs:   activeJobs,
		AddressClassifications: classifications,
		DNSLookupDuration:      dnsLookupDuration,
	}, nil
}

// RecordHTTPRequest records one finished HTTP request.
func (m *BusinessMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_code", strconv.Itoa(status)),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTPActive adjusts the in-flight request gauge.
func (m *BusinessMetrics) RecordHTTPActive(ctx context.Context, delta int64) {
	m.HTTPActiveRequests.Add(ctx, delta)
}

// RecordRowsScanned counts data rows read by operation ("preview" or "process").
func (m *BusinessMetrics) RecordRowsScanned(ctx context.Context, operation string, rows int) {
	m.RowsScanned.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordArtifactCreated counts one stored artifact of the given kind.
func (m *BusinessMetrics) RecordArtifactCreated(ctx context.Context, kind string) {
	m.ArtifactsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDNSLookup implements validation.Metrics.
func (m *BusinessMetrics) RecordDNSLookup(ctx context.Context, duration time.Duration, result string) {
	m.DNSLookupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("result", result)))
}

// RecordClassification implements validation.Metrics.
func (m *BusinessMetrics) RecordClassification(ctx context.Context, class validation.Classification, n int) {
	if n <= 0 {
		return
	}
	m.AddressClassifications.Add(ctx, int64(n), metric.WithAttributes(attribute.String("classification", string(class))))
}

// RecordJobActive implements operations.JobMetrics.
func (m *BusinessMetrics) RecordJobActive(ctx context.Context, delta int64) {
	m.ValidationActiveJobs.Add(ctx, delta)
}

// RecordJobCompletion implements operations.JobMetrics.
func (m *BusinessMetrics) RecordJobCompletion(ctx context.Context, status, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("outcome", outcome),
	)
	m.ValidationJobsTotal.Add(ctx, 1, attrs)
	m.ValidationJobDuration.Record(ctx, duration.Seconds(), attrs)
}
