package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "csvmail/internal/errors"
	"csvmail/internal/operations"
	"csvmail/internal/services"
	api "csvmail/pkg/contracts/api/v1"
)

// Response messages of the validate endpoint.
const (
	MessageValidated        = "File emails have been validated successfully!"
	MessageCancelled        = "Email validation was cancelled before it finished"
	MessageValidationQueued = "Email validation is running"
	MessageCancelRequested  = "Cancellation requested"
)

// ValidationHandler serves the /email-validator routes.
type ValidationHandler struct {
	service      *services.ValidationService
	validator    *RequestValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewValidationHandler creates a new validation handler
func NewValidationHandler(service *services.ValidationService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *ValidationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationHandler{
		service:      service,
		validator:    NewRequestValidator(),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "validation")),
	}
}

// Routes returns the email validator routes
func (h *ValidationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/validate/{filename}", h.Validate)
	r.Get("/jobs/{filename}", h.Status)
	r.Delete("/jobs/{filename}", h.Cancel)

	return r
}

// Validate handles POST /email-validator/validate/{filename}. By default it
// waits for the job; ?wait=false returns 202 with the job record at once.
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	var req api.ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	col, err := columnIndex(req.EmailColumnIndex)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	wait := true
	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err = strconv.ParseBool(raw)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("wait", "wait must be true or false"))
			return
		}
	}

	outcome, err := h.service.Validate(r.Context(), filename, col, wait)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := api.ValidateResponse{
		Joined: outcome.Joined,
		Job:    toJob(&outcome.Job),
	}
	if !outcome.Finished {
		resp.Message = MessageValidationQueued
		h.errorHandler.JSON(w, r, http.StatusAccepted, resp)
		return
	}

	resp.Message = MessageValidated
	if outcome.Job.Status == operations.JobStatusCancelled {
		resp.Message = MessageCancelled
	}
	resp.Summary = resp.Job.Summary
	render.JSON(w, r, resp)
}

// Status handles GET /email-validator/jobs/{filename}
func (h *ValidationHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Status(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, toJob(job))
}

// Cancel handles DELETE /email-validator/jobs/{filename}
func (h *ValidationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Cancel(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.errorHandler.JSON(w, r, http.StatusAccepted, api.CancelResponse{
		Message: MessageCancelRequested,
		Job:     toJob(job),
	})
}
