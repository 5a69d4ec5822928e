package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "csvmail/internal/errors"
	"csvmail/internal/services"
	"csvmail/internal/transform"
	api "csvmail/pkg/contracts/api/v1"
)

// CSVHandler serves the /csv-processor routes.
type CSVHandler struct {
	service      *services.CSVService
	validator    *RequestValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewCSVHandler creates a new CSV handler
func NewCSVHandler(service *services.CSVService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *CSVHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVHandler{
		service:      service,
		validator:    NewRequestValidator(),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "csv")),
	}
}

// Routes returns the CSV processor routes
func (h *CSVHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/preview", h.Preview)
	r.Post("/process", h.Process)
	r.Get("/files/{filename}", h.Download)

	return r
}

// Preview handles POST /csv-processor/preview
func (h *CSVHandler) Preview(w http.ResponseWriter, r *http.Request) {
	file, name, err := parseUpload(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer file.Close()

	req := api.PreviewRequest{
		EmailColumnIndex: api.ColumnIndex(r.FormValue("emailColumnIndex")),
		Delimiter:        r.FormValue("delimiter"),
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

	result, err := h.service.Preview(r.Context(), services.Upload{
		Body:      file,
		Filename:  name,
		Delimiter: delimiter(req.Delimiter),
	}, col)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.PreviewResponse{Stats: toStats(result)})
}

// Process handles POST /csv-processor/process
func (h *CSVHandler) Process(w http.ResponseWriter, r *http.Request) {
	file, name, err := parseUpload(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer file.Close()

	req := api.ProcessRequest{
		EmailColumnIndex:  api.ColumnIndex(r.FormValue("emailColumnIndex")),
		RemoveEmptyEmails: r.FormValue("removeEmptyEmails"),
		Delimiter:         r.FormValue("delimiter"),
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
	policy, err := transform.ParseEmptyRowPolicy(req.RemoveEmptyEmails)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("removeEmptyEmails", err.Error()))
		return
	}

	result, err := h.service.Process(r.Context(), services.Upload{
		Body:      file,
		Filename:  name,
		Delimiter: delimiter(req.Delimiter),
	}, col, policy)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.errorHandler.JSON(w, r, http.StatusCreated, toProcessResponse(result))
}

// Download handles GET /csv-processor/files/{filename}
func (h *CSVHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	rc, info, err := h.service.Open(r.Context(), filename)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Token+".csv"))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are out, so the client only sees a truncated body.
		h.logger.ErrorContext(r.Context(), "download interrupted",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
	}
}
