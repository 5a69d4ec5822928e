package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"csvmail/internal/artifacts"
	"csvmail/internal/operations"
	"csvmail/internal/tabular"
)

// Common error types following RFC 7807
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeServiceDown      = "/errors/service-unavailable"
	TypeTimeout          = "/errors/timeout"
	TypeConflict         = "/errors/conflict"
	TypePayloadTooLarge  = "/errors/payload-too-large"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
)

// Domain-specific error types
const (
	TypeInputFormat          = "/errors/csv/malformed"
	TypeColumnOutOfRange     = "/errors/csv/column-out-of-range"
	TypeEmptyFile            = "/errors/csv/empty"
	TypeArtifactNotFound     = "/errors/artifact/not-found"
	TypeArtifactCorrupted    = "/errors/artifact/corrupted"
	TypeJobNotFound          = "/errors/validation/job-not-found"
	TypeValidationInProgress = "/errors/validation/in-progress"
	TypeJobNotActive         = "/errors/validation/not-active"
	TypeQueueUnavailable     = "/errors/validation/queue-unavailable"
	TypeWebSocketUpgrade     = "/errors/websocket/upgrade-failed"
)

// retryAfterSeconds is advertised when the job queue cannot accept work.
const retryAfterSeconds = 5

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("problem_type", problem.Type),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	if problem.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", fmt.Sprint(retryAfterSeconds))
	}
	problem.Write(w)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	instance := r.URL.Path

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, instance)
	}

	var formatErr *tabular.InputFormatError
	if errors.As(err, &formatErr) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInputFormat,
			"Malformed CSV",
			formatErr.Error(),
			instance,
		).WithExtension("line", formatErr.Line)
	}

	var rangeErr *tabular.ColumnOutOfRangeError
	if errors.As(err, &rangeErr) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeColumnOutOfRange,
			"Column Out Of Range",
			rangeErr.Error(),
			instance,
		).WithExtension("columnIndex", rangeErr.Index).
			WithExtension("columnCount", rangeErr.Width)
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, artifacts.ErrArtifactTooLarge) {
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			"The upload exceeds the maximum allowed size",
			instance,
		)
	}

	switch {
	case errors.Is(err, tabular.ErrEmptyFile):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeEmptyFile,
			"Empty File",
			"The uploaded file has no header row",
			instance,
		)

	case errors.Is(err, artifacts.ErrArtifactNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeArtifactNotFound,
			"File Not Found",
			"The requested file does not exist or has expired",
			instance,
		)

	case errors.Is(err, artifacts.ErrArtifactCorrupted):
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeArtifactCorrupted,
			"File Corrupted",
			"The stored file failed its integrity check",
			instance,
		)

	case errors.Is(err, operations.ErrJobNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeJobNotFound,
			"Validation Job Not Found",
			"No validation job exists for this file",
			instance,
		)

	case errors.Is(err, operations.ErrValidationInProgress):
		return NewProblemDetails(
			http.StatusConflict,
			TypeValidationInProgress,
			"Validation In Progress",
			err.Error(),
			instance,
		)

	case errors.Is(err, operations.ErrJobNotActive):
		return NewProblemDetails(
			http.StatusConflict,
			TypeJobNotActive,
			"Validation Not Active",
			"The validation job for this file has already finished",
			instance,
		)

	case errors.Is(err, operations.ErrQueueFull), errors.Is(err, operations.ErrQueueStopped):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeQueueUnavailable,
			"Validation Queue Unavailable",
			err.Error(),
			instance,
		).WithExtension("retry_after", retryAfterSeconds)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			instance,
		)

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request",
			instance,
		)
	}
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, instance string) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.StatusCode {
	case http.StatusBadRequest:
		problemType = TypeValidation
	case http.StatusNotFound:
		problemType = TypeNotFound
	case http.StatusConflict:
		problemType = TypeConflict
	case http.StatusRequestEntityTooLarge:
		problemType = TypePayloadTooLarge
	case http.StatusTooManyRequests:
		problemType = TypeRateLimit
	case http.StatusServiceUnavailable:
		problemType = TypeServiceDown
	}
	if apiErr.ErrorCode == ErrWebSocketUpgrade.ErrorCode {
		problemType = TypeWebSocketUpgrade
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		instance,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	problem.Write(w)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context())).Write(w)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllowed,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context())).Write(w)
}

// Recoverer returns a middleware that turns panics into problem responses.
func (h *ErrorHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.HandlePanic(w, r, rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// JSON helper for consistent JSON success responses
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
