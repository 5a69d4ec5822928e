// Package validation classifies the email column of a stored artifact and
// writes an annotated report.
//
// Every distinct non-empty address is checked once: first against a
// structural syntax rule, then, if that passes, its domain is checked for
// mail-exchange reachability over DNS. Domain checks run on a bounded pool
// with a per-check timeout and a small retry budget; a check that keeps
// failing degrades the address to Unknown instead of failing the job.
package validation

import (
	"context"
	"fmt"
	"time"

	"csvmail/internal/artifacts"
)

// Classification is the outcome for one address.
type Classification string

const (
	Valid         Classification = "valid"
	InvalidSyntax Classification = "invalid_syntax"
	InvalidDomain Classification = "invalid_domain"
	Unknown       Classification = "unknown"
	// Empty marks rows without an address in the report. It is not counted
	// as a classification.
	Empty Classification = "empty"
)

// Outcome is the terminal state of a validation run.
type Outcome string

const (
	OutcomeCompleteSuccess      Outcome = "complete_success"
	OutcomeCompleteWithUnknowns Outcome = "complete_with_unknowns"
	OutcomeFailed               Outcome = "failed"
	OutcomeCancelled            Outcome = "cancelled"
)

// Record is the per-row result written to the report.
type Record struct {
	Row            int            `json:"row"`
	Address        string         `json:"address"`
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason,omitempty"`
}

// Summary aggregates one run. Counts are per row occurrence, so they do not
// depend on the order in which checks complete.
type Summary struct {
	Filename          artifacts.Token `json:"filename"`
	ColumnIndex       int             `json:"columnIndex"`
	ColumnName        string          `json:"columnName"`
	TotalRows         int             `json:"totalRows"`
	EmptyEmails       int             `json:"emptyEmails"`
	Valid             int             `json:"valid"`
	InvalidSyntax     int             `json:"invalidSyntax"`
	InvalidDomain     int             `json:"invalidDomain"`
	Unknown           int             `json:"unknown"`
	DistinctAddresses int             `json:"distinctAddresses"`
	DistinctDomains   int             `json:"distinctDomains"`
	Outcome           Outcome         `json:"outcome"`
	ReportFilename    artifacts.Token `json:"reportFilename,omitempty"`
	Error             string          `json:"error,omitempty"`
	StartedAt         time.Time       `json:"startedAt"`
	CompletedAt       time.Time       `json:"completedAt"`
	DurationMs        int64           `json:"durationMs"`
}

// Counts returns the classification counts keyed by classification.
func (s Summary) Counts() map[Classification]int {
	return map[Classification]int{
		Valid:         s.Valid,
		InvalidSyntax: s.InvalidSyntax,
		InvalidDomain: s.InvalidDomain,
		Unknown:       s.Unknown,
	}
}

func (s *Summary) add(c Classification) {
	switch c {
	case Valid:
		s.Valid++
	case InvalidSyntax:
		s.InvalidSyntax++
	case InvalidDomain:
		s.InvalidDomain++
	case Unknown:
		s.Unknown++
	case Empty:
		s.EmptyEmails++
	}
}

// TransientNetworkError is a domain check that failed for reasons other than
// a conclusive DNS answer. It is retried and never surfaced to callers.
type TransientNetworkError struct {
	Domain string
	Err    error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient lookup failure for %s: %v", e.Domain, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// Metrics receives validation telemetry.
type Metrics interface {
	RecordDNSLookup(ctx context.Context, duration time.Duration, result string)
	RecordClassification(ctx context.Context, class Classification, n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordDNSLookup(context.Context, time.Duration, string) {}
func (noopMetrics) RecordClassification(context.Context, Classification, int) {}
