package api

import "time"

// Stats describes the email column of one file.
type Stats struct {
	TotalRows            int    `json:"totalRows"`
	TotalEmails          int    `json:"totalEmails"`
	TotalEmptyEmails     int    `json:"totalEmptyEmails"`
	TotalDuplicateEmails int    `json:"totalDuplicateEmails"`
	TotalMalformedRows   int    `json:"totalMalformedRows"`
	ColumnName           string `json:"columnName"`
}

// PreviewResponse is returned by preview.
type PreviewResponse struct {
	Stats Stats `json:"stats"`
}

// ProcessResponse is returned by process. Filename is the token of the new
// artifact and the only handle on it.
type ProcessResponse struct {
	Filename    string    `json:"filename"`
	Stats       Stats     `json:"stats"`
	InputRows   int       `json:"inputRows"`
	DroppedRows int       `json:"droppedRows"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ValidationSummary holds per-classification counts of one validation run.
type ValidationSummary struct {
	Filename          string    `json:"filename"`
	ColumnIndex       int       `json:"columnIndex"`
	ColumnName        string    `json:"columnName"`
	TotalRows         int       `json:"totalRows"`
	EmptyEmails       int       `json:"emptyEmails"`
	Valid             int       `json:"valid"`
	InvalidSyntax     int       `json:"invalidSyntax"`
	InvalidDomain     int       `json:"invalidDomain"`
	Unknown           int       `json:"unknown"`
	DistinctAddresses int       `json:"distinctAddresses"`
	DistinctDomains   int       `json:"distinctDomains"`
	Outcome           string    `json:"outcome"`
	ReportFilename    string    `json:"reportFilename,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	CompletedAt       time.Time `json:"completedAt"`
	DurationMs        int64     `json:"durationMs"`
}

// ValidationJob is the status record of a validation job.
type ValidationJob struct {
	ID             string             `json:"id"`
	Filename       string             `json:"filename"`
	ColumnIndex    int                `json:"columnIndex"`
	Status         string             `json:"status"`
	Progress       int                `json:"progress"`
	DomainsChecked int                `json:"domainsChecked"`
	DomainsTotal   int                `json:"domainsTotal"`
	Message        string             `json:"message,omitempty"`
	Error          string             `json:"error,omitempty"`
	Summary        *ValidationSummary `json:"summary,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
}

// ValidateResponse is returned by validate. Summary is set once the job has
// finished; Joined tells the caller it attached to a job already running.
type ValidateResponse struct {
	Message string             `json:"message"`
	Joined  bool               `json:"joined,omitempty"`
	Job     ValidationJob      `json:"job"`
	Summary *ValidationSummary `json:"summary,omitempty"`
}

// CancelResponse is returned when cancellation was requested.
type CancelResponse struct {
	Message string        `json:"message"`
	Job     ValidationJob `json:"job"`
}
