// Package errors maps failures to RFC 7807 problem responses.
//
// Domain packages return sentinel or typed errors wrapped with %w. Handlers
// pass them to ErrorHandler.HandleError, which picks status, problem type and
// title with errors.Is and errors.As. Every problem carries a "message"
// member equal to its detail, plus the request's trace_id.
package errors
