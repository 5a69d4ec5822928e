package validation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"csvmail/internal/artifacts"
	"csvmail/internal/stats"
	"csvmail/internal/tabular"
)

// ReportColumn is the column appended to every report row.
const ReportColumn = "email_validation"

// Progress is called as domain checks complete. It may be called from
// several goroutines at once.
type Progress func(done, total int)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Workers int
}

// Pipeline validates the email column of a stored artifact.
type Pipeline struct {
	store   artifacts.Store
	checker Checker
	workers int
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPipeline returns a pipeline reading from and writing reports to store.
func NewPipeline(store artifacts.Store, checker Checker, cfg PipelineConfig, metrics Metrics, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:   store,
		checker: checker,
		workers: cfg.Workers,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "validation_pipeline")),
		now:     time.Now,
	}
}

// addressVerdict is the classification of one distinct address.
type addressVerdict struct {
	class  Classification
	reason string
}

// Run validates token's column columnIndex and stores an annotated report as
// a new artifact. The input artifact is only read.
//
// An error is returned only when the artifact cannot be read or parsed; the
// summary then has OutcomeFailed. Cancelling ctx stops new domain checks
// from being issued while checks already running finish on their own
// timeout. Unchecked addresses are reported as Unknown and the outcome is
// OutcomeCancelled.
func (p *Pipeline) Run(ctx context.Context, token artifacts.Token, columnIndex int, progress Progress) (Summary, error) {
	summary := Summary{
		Filename:    token,
		ColumnIndex: columnIndex,
		StartedAt:   p.now(),
	}
	fail := func(err error) (Summary, error) {
		summary.Outcome = OutcomeFailed
		summary.Error = err.Error()
		summary.CompletedAt = p.now()
		summary.DurationMs = summary.CompletedAt.Sub(summary.StartedAt).Milliseconds()
		return summary, err
	}

	addresses, col, err := p.collect(ctx, token, columnIndex)
	if err != nil {
		return fail(err)
	}
	summary.ColumnName = col.Name
	summary.DistinctAddresses = len(addresses)

	verdicts, domains, cancelled := p.classify(ctx, addresses, progress)
	summary.DistinctDomains = domains

	// The report is written even after cancellation, so it must not inherit it.
	reportCtx := context.WithoutCancel(ctx)
	report, err := p.writeReport(reportCtx, token, col, verdicts, &summary)
	if err != nil {
		return fail(err)
	}
	summary.ReportFilename = report.Token

	switch {
	case cancelled:
		summary.Outcome = OutcomeCancelled
	case summary.Unknown > 0:
		summary.Outcome = OutcomeCompleteWithUnknowns
	default:
		summary.Outcome = OutcomeCompleteSuccess
	}
	summary.CompletedAt = p.now()
	summary.DurationMs = summary.CompletedAt.Sub(summary.StartedAt).Milliseconds()

	for class, n := range summary.Counts() {
		p.metrics.RecordClassification(reportCtx, class, n)
	}
	p.logger.InfoContext(ctx, "validation finished",
		slog.String("outcome", string(summary.Outcome)),
		slog.Int("rows", summary.TotalRows),
		slog.Int("valid", summary.Valid),
		slog.Int("invalid_syntax", summary.InvalidSyntax),
		slog.Int("invalid_domain", summary.InvalidDomain),
		slog.Int("unknown", summary.Unknown),
		slog.Int("distinct_domains", summary.DistinctDomains))
	return summary, nil
}

// open reads the artifact and resolves the column against its own header.
func (p *Pipeline) open(ctx context.Context, token artifacts.Token, columnIndex int) (io.Closer, *tabular.Reader, tabular.Column, error) {
	rc, _, err := p.store.Get(ctx, token)
	if err != nil {
		return nil, nil, tabular.Column{}, err
	}
	r, err := tabular.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, nil, tabular.Column{}, err
	}
	header, err := r.Header()
	if err != nil {
		rc.Close()
		return nil, nil, tabular.Column{}, err
	}
	col, err := tabular.Resolve(header, columnIndex)
	if err != nil {
		rc.Close()
		return nil, nil, tabular.Column{}, err
	}
	return rc, r, col, nil
}

// collect returns the distinct normalized addresses of the column.
func (p *Pipeline) collect(ctx context.Context, token artifacts.Token, columnIndex int) (map[string]struct{}, tabular.Column, error) {
	closer, r, col, err := p.open(ctx, token, columnIndex)
	if err != nil {
		return nil, tabular.Column{}, err
	}
	defer closer.Close()

	addresses := make(map[string]struct{})
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, tabular.Column{}, err
		}
		value, err := tabular.Extract(row, col)
		if err != nil || tabular.IsEmpty(value) {
			continue
		}
		addresses[stats.Normalize(value)] = struct{}{}
	}
	return addresses, col, nil
}

// classify checks syntax locally, then checks each distinct domain on the
// bounded pool. It reports whether ctx was cancelled before every domain was
// issued.
func (p *Pipeline) classify(ctx context.Context, addresses map[string]struct{}, progress Progress) (map[string]addressVerdict, int, bool) {
	verdicts := make(map[string]addressVerdict, len(addresses))
	byDomain := make(map[string][]string)
	for addr := range addresses {
		domain, err := CheckSyntax(addr)
		if err != nil {
			var se *SyntaxError
			errors.As(err, &se)
			verdicts[addr] = addressVerdict{class: InvalidSyntax, reason: se.Reason}
			continue
		}
		byDomain[domain] = append(byDomain[domain], addr)
	}

	// Sorted so a cancelled run issues a stable prefix of the work.
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var (
		mu        sync.Mutex
		done      atomic.Int64
		cancelled bool
		g         errgroup.Group
	)
	g.SetLimit(p.workers)
	checkCtx := context.WithoutCancel(ctx)
	results := make(map[string]DomainVerdict, len(domains))

	for _, domain := range domains {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g.Go(func() error {
			v := p.checker.Check(checkCtx, domain)
			mu.Lock()
			results[domain] = v
			mu.Unlock()
			if progress != nil {
				progress(int(done.Add(1)), len(domains))
			}
			return nil
		})
	}
	g.Wait()

	for domain, addrs := range byDomain {
		v, ok := results[domain]
		if !ok {
			v = DomainVerdict{Classification: Unknown, Reason: "cancelled"}
		}
		for _, addr := range addrs {
			verdicts[addr] = addressVerdict{class: v.Classification, reason: v.Reason}
		}
	}
	return verdicts, len(domains), cancelled
}

// writeReport re-reads the artifact, annotates each row and stores the
// result as a report artifact. Counts are accumulated per row.
func (p *Pipeline) writeReport(ctx context.Context, token artifacts.Token, col tabular.Column, verdicts map[string]addressVerdict, summary *Summary) (artifacts.Info, error) {
	closer, r, _, err := p.open(ctx, token, col.Index)
	if err != nil {
		return artifacts.Info{}, err
	}
	defer closer.Close()
	header, _ := r.Header()

	var (
		info     artifacts.Info
		writeErr error
		counts   Summary
	)
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		writeErr = annotate(pw, r, header, col, verdicts, &counts)
		pw.CloseWithError(writeErr)
		return writeErr
	})
	g.Go(func() error {
		var err error
		info, err = p.store.Put(gctx, pr, artifacts.Meta{
			Kind:        artifacts.KindReport,
			Parent:      token,
			ColumnIndex: col.Index,
		})
		if err != nil {
			pr.CloseWithError(err)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		if writeErr != nil {
			return artifacts.Info{}, writeErr
		}
		return artifacts.Info{}, fmt.Errorf("failed to store validation report: %w", err)
	}

	summary.TotalRows = counts.TotalRows
	summary.EmptyEmails = counts.EmptyEmails
	summary.Valid = counts.Valid
	summary.InvalidSyntax = counts.InvalidSyntax
	summary.InvalidDomain = counts.InvalidDomain
	summary.Unknown = counts.Unknown
	return info, nil
}

func annotate(w io.Writer, r *tabular.Reader, header []string, col tabular.Column, verdicts map[string]addressVerdict, counts *Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, header...), ReportColumn, ReportColumn+"_reason")); err != nil {
		return err
	}

	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		counts.TotalRows++

		rec := Record{Row: row.Number, Classification: Empty}
		if value, err := tabular.Extract(row, col); err == nil && !tabular.IsEmpty(value) {
			rec.Address = value
			v, ok := verdicts[stats.Normalize(value)]
			if !ok {
				v = addressVerdict{class: Unknown, reason: "not checked"}
			}
			rec.Classification, rec.Reason = v.class, v.reason
		}
		counts.add(rec.Classification)

		// Short rows are padded so the annotation lines up with the header.
		width := max(len(row.Fields), len(header))
		out := make([]string, width, width+2)
		copy(out, row.Fields)
		out = append(out, string(rec.Classification), rec.Reason)
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
