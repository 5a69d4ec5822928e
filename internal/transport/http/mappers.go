package http

import (
	"csvmail/internal/operations"
	"csvmail/internal/stats"
	"csvmail/internal/transform"
	"csvmail/internal/validation"
	api "csvmail/pkg/contracts/api/v1"
)

func toStats(s stats.Stats) api.Stats {
	return api.Stats{
		TotalRows:            s.TotalRows,
		TotalEmails:          s.TotalEmails,
		TotalEmptyEmails:     s.TotalEmptyEmails,
		TotalDuplicateEmails: s.TotalDuplicateEmails,
		TotalMalformedRows:   s.TotalMalformedRows,
		ColumnName:           s.ColumnName,
	}
}

func toProcessResponse(r transform.Result) api.ProcessResponse {
	return api.ProcessResponse{
		Filename:    string(r.Artifact.Token),
		Stats:       toStats(r.Stats),
		InputRows:   r.InputRows,
		DroppedRows: r.DroppedRows,
		ExpiresAt:   r.Artifact.ExpiresAt,
	}
}

func toSummary(s *validation.Summary) *api.ValidationSummary {
	if s == nil {
		return nil
	}
	return &api.ValidationSummary{
		Filename:          string(s.Filename),
		ColumnIndex:       s.ColumnIndex,
		ColumnName:        s.ColumnName,
		TotalRows:         s.TotalRows,
		EmptyEmails:       s.EmptyEmails,
		Valid:             s.Valid,
		InvalidSyntax:     s.InvalidSyntax,
		InvalidDomain:     s.InvalidDomain,
		Unknown:           s.Unknown,
		DistinctAddresses: s.DistinctAddresses,
		DistinctDomains:   s.DistinctDomains,
		Outcome:           string(s.Outcome),
		ReportFilename:    string(s.ReportFilename),
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
		DurationMs:        s.DurationMs,
	}
}

func toJob(j *operations.Job) api.ValidationJob {
	return api.ValidationJob{
		ID:             j.ID,
		Filename:       string(j.Filename),
		ColumnIndex:    j.ColumnIndex,
		Status:         string(j.Status),
		Progress:       j.Progress,
		DomainsChecked: j.DomainsChecked,
		DomainsTotal:   j.DomainsTotal,
		Message:        j.Message,
		Error:          j.Error,
		Summary:        toSummary(j.Summary),
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
