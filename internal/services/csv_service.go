package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"csvmail/internal/artifacts"
	"csvmail/internal/infrastructure"
	"csvmail/internal/stats"
	"csvmail/internal/tabular"
	"csvmail/internal/transform"
)

// CSVMetrics records CSV processing counters. infrastructure.BusinessMetrics
// satisfies it.
type CSVMetrics interface {
	RecordRowsScanned(ctx context.Context, operation string, rows int)
	RecordArtifactCreated(ctx context.Context, kind string)
}

// Upload is one uploaded file and its parsing options.
type Upload struct {
	Body     io.Reader
	Filename string
	// Delimiter overrides sniffing when non-zero.
	Delimiter rune
}

func (u Upload) readerOptions() []tabular.Option {
	if u.Delimiter == 0 {
		return nil
	}
	return []tabular.Option{tabular.WithDelimiter(u.Delimiter)}
}

// CSVService implements preview, process and download.
type CSVService struct {
	store   artifacts.Store
	engine  *transform.Engine
	dedup   stats.DedupMode
	metrics CSVMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewCSVService creates a CSV service writing artifacts into store. metrics
// may be nil.
func NewCSVService(store artifacts.Store, dedup stats.DedupMode, metrics CSVMetrics, logger *slog.Logger) *CSVService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVService{
		store:   store,
		engine:  transform.NewEngine(store, dedup, logger),
		dedup:   dedup,
		metrics: metrics,
		tracer:  otel.Tracer("csvmail/services"),
		logger:  logger.With(slog.String("service", "csv")),
	}
}

// Preview computes statistics for the upload without storing anything.
func (s *CSVService) Preview(ctx context.Context, upload Upload, columnIndex int) (stats.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "csv.preview", trace.WithAttributes(
		attribute.String("source.name", upload.Filename),
		attribute.Int("column.index", columnIndex),
	))
	defer span.End()

	start := time.Now()
	reader, err := tabular.NewReader(upload.Body, upload.readerOptions()...)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return stats.Stats{}, err
	}
	defer reader.Close()

	result, err := stats.Compute(ctx, reader, columnIndex, stats.WithDedupMode(s.dedup))
	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.WarnContext(ctx, "preview failed",
			slog.String("source", upload.Filename),
			slog.Int("column_index", columnIndex),
			slog.String("error", err.Error()))
		return stats.Stats{}, err
	}

	s.recordRows(ctx, "preview", result.TotalRows)
	span.SetAttributes(attribute.Int("rows.total", result.TotalRows))
	s.logger.InfoContext(ctx, "preview computed",
		slog.String("source", upload.Filename),
		slog.String("format", reader.Format().String()),
		slog.String("column", result.ColumnName),
		slog.Int("rows", result.TotalRows),
		slog.Int("emails", result.TotalEmails),
		slog.Int("duplicates", result.TotalDuplicateEmails),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// Process rewrites the upload into a new artifact according to policy.
func (s *CSVService) Process(ctx context.Context, upload Upload, columnIndex int, policy transform.EmptyRowPolicy) (transform.Result, error) {
	ctx, span := s.tracer.Start(ctx, "csv.process", trace.WithAttributes(
		attribute.String("source.name", upload.Filename),
		attribute.Int("column.index", columnIndex),
		attribute.String("empty_row_policy", policy.String()),
	))
	defer span.End()

	reader, err := tabular.NewReader(upload.Body, upload.readerOptions()...)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return transform.Result{}, err
	}
	defer reader.Close()

	result, err := s.engine.Transform(ctx, reader, columnIndex, policy, artifacts.Meta{
		Kind:        artifacts.KindProcessed,
		SourceName:  upload.Filename,
		ColumnIndex: columnIndex,
	})
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return transform.Result{}, err
	}

	s.recordRows(ctx, "process", result.InputRows)
	if s.metrics != nil {
		s.metrics.RecordArtifactCreated(ctx, string(artifacts.KindProcessed))
	}
	span.SetAttributes(
		attribute.Int("rows.input", result.InputRows),
		attribute.Int("rows.dropped", result.DroppedRows),
	)
	return result, nil
}

// Open returns the artifact named by filename for download. Malformed and
// unknown filenames both report artifacts.ErrArtifactNotFound.
func (s *CSVService) Open(ctx context.Context, filename string) (io.ReadCloser, artifacts.Info, error) {
	token, err := artifacts.ParseToken(filename)
	if err != nil {
		return nil, artifacts.Info{}, err
	}
	rc, info, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, artifacts.Info{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	s.logger.DebugContext(ctx, "artifact opened",
		slog.String("filename", filename),
		slog.String("kind", string(info.Meta.Kind)),
		slog.Int64("size", info.Size))
	return rc, info, nil
}

func (s *CSVService) recordRows(ctx context.Context, operation string, rows int) {
	if s.metrics != nil {
		s.metrics.RecordRowsScanned(ctx, operation, rows)
	}
}
