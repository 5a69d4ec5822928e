// Package services implements the business logic layer of csvmail. It sits
// between the HTTP handlers and the pipeline packages (tabular, stats,
// transform, artifacts, operations) so handlers only translate requests and
// responses.
//
// # Available Services
//
//	- CSVService: preview statistics, process into a new artifact, open artifacts for download
//	- ValidationService: submit or join validation jobs, report status, cancel
//	- HealthService: liveness, readiness and version information
//
// # Error Handling
//
// Services return the domain errors of the packages they call, wrapped with
// %w where context helps. internal/errors maps them to problem responses:
//
//	- *tabular.InputFormatError, *tabular.ColumnOutOfRangeError, tabular.ErrEmptyFile
//	- artifacts.ErrArtifactNotFound, artifacts.ErrArtifactCorrupted
//	- operations.ErrValidationInProgress, operations.ErrQueueFull, operations.ErrJobNotFound
//
// # Testing
//
// Services are tested against the real file artifact store in a temp
// directory and a real job queue driven by a stub runner:
//
//	store := newTestStore(t)
//	svc := NewCSVService(store, stats.DedupExact, nil, logger)
//	result, err := svc.Process(ctx, Upload{Body: bytes.NewReader(data)}, 1, transform.DropEmptyRows)
package services
